// Package config loads service settings from defaults, an optional YAML file,
// a .env file and TRIP_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/tripthesia-aggregator/internal/models"
)

type Config struct {
	Server     ServerConfig                         `yaml:"server"`
	Logging    LoggingConfig                        `yaml:"logging"`
	Services   map[models.ServiceType]ServiceConfig `yaml:"services"`
	Providers  []ProviderConfig                     `yaml:"providers"`
	Fallback   FallbackConfig                       `yaml:"fallback"`
	Clustering ClusteringConfig                     `yaml:"clustering"`
	PriceBands PriceBandConfig                      `yaml:"priceBands"`
	Deals      DealsConfig                          `yaml:"deals"`
	Catalog    CatalogConfig                        `yaml:"catalog"`
}

type ServerConfig struct {
	Address         string          `yaml:"address"`
	GracefulTimeout time.Duration   `yaml:"gracefulTimeout"`
	RequestTimeout  time.Duration   `yaml:"requestTimeout"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig is the per-client token bucket applied to search endpoints.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	Burst             int `yaml:"burst"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ServiceConfig holds the per-service timing knobs. Timeout bounds each provider
// call; BranchTimeout bounds the whole branch inside a trip search.
type ServiceConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	BranchTimeout time.Duration `yaml:"branchTimeout"`
}

// ProviderConfig declares one inventory source. Kind is "mock" or "http".
type ProviderConfig struct {
	Name           string             `yaml:"name"`
	Service        models.ServiceType `yaml:"service"`
	Kind           string             `yaml:"kind"`
	URL            string             `yaml:"url"`
	AvgLatency     float64            `yaml:"avgLatency"`
	FailRate       float64            `yaml:"failRate"`
	RequestsPerSec float64            `yaml:"requestsPerSec"`
	MaxRetries     int                `yaml:"maxRetries"`
}

type FallbackConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ClusteringConfig struct {
	Strategy            string  `yaml:"strategy"`
	MaxClusters         int     `yaml:"maxClusters"`
	MinHotelsPerCluster int     `yaml:"minHotelsPerCluster"`
	MaxRadiusKm         float64 `yaml:"maxRadiusKm"`
	Seed                int64   `yaml:"seed"`
}

type PriceBandConfig struct {
	Budget float64 `yaml:"budget"`
	Luxury float64 `yaml:"luxury"`
}

type DealsConfig struct {
	MaxAlerts int           `yaml:"maxAlerts"`
	Window    time.Duration `yaml:"window"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("TRIP_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.fillServiceDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultServices are the per-service defaults: provider timeouts inside the
// 5 to 25 second window and cache TTLs matched to how fast each inventory moves.
func DefaultServices() map[models.ServiceType]ServiceConfig {
	return map[models.ServiceType]ServiceConfig{
		models.ServiceFlight:    {Timeout: 15 * time.Second, CacheTTL: 15 * time.Minute, BranchTimeout: 20 * time.Second},
		models.ServiceHotel:     {Timeout: 10 * time.Second, CacheTTL: 30 * time.Minute, BranchTimeout: 15 * time.Second},
		models.ServiceTransport: {Timeout: 20 * time.Second, CacheTTL: time.Hour, BranchTimeout: 25 * time.Second},
		models.ServiceCarRental: {Timeout: 12 * time.Second, CacheTTL: 30 * time.Minute, BranchTimeout: 17 * time.Second},
	}
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			GracefulTimeout: 15 * time.Second,
			RequestTimeout:  30 * time.Second,
			RateLimit:       RateLimitConfig{RequestsPerMinute: 60, Burst: 10},
		},
		Logging:  LoggingConfig{Level: "info", JSON: true},
		Services: DefaultServices(),
		Providers: []ProviderConfig{
			{Name: "skyhub", Service: models.ServiceFlight, Kind: "mock", AvgLatency: 0.3, FailRate: 0.05},
			{Name: "airfinder", Service: models.ServiceFlight, Kind: "mock", AvgLatency: 0.4, FailRate: 0.08},
			{Name: "staybook", Service: models.ServiceHotel, Kind: "mock", AvgLatency: 0.2, FailRate: 0.10},
			{Name: "roomfinder", Service: models.ServiceHotel, Kind: "mock", AvgLatency: 0.25, FailRate: 0.12},
			{Name: "hotelhub", Service: models.ServiceHotel, Kind: "mock", AvgLatency: 0.15, FailRate: 0.05},
			{Name: "railbus", Service: models.ServiceTransport, Kind: "mock", AvgLatency: 0.3, FailRate: 0.05},
			{Name: "groundlink", Service: models.ServiceTransport, Kind: "mock", AvgLatency: 0.35, FailRate: 0.08},
			{Name: "drivenow", Service: models.ServiceCarRental, Kind: "mock", AvgLatency: 0.2, FailRate: 0.05},
			{Name: "rentwise", Service: models.ServiceCarRental, Kind: "mock", AvgLatency: 0.25, FailRate: 0.08},
		},
		Fallback: FallbackConfig{Enabled: true},
		Clustering: ClusteringConfig{
			Strategy:            "kmeans",
			MaxClusters:         5,
			MinHotelsPerCluster: 2,
			MaxRadiusKm:         5,
			Seed:                42,
		},
		PriceBands: PriceBandConfig{Budget: 100, Luxury: 300},
		Deals:      DealsConfig{MaxAlerts: 5, Window: 90 * 24 * time.Hour},
	}
}

// fillServiceDefaults restores zero fields of partially configured services.
func (c *Config) fillServiceDefaults() {
	if c.Services == nil {
		c.Services = map[models.ServiceType]ServiceConfig{}
	}
	for st, def := range DefaultServices() {
		sc := c.Services[st]
		if sc.Timeout == 0 {
			sc.Timeout = def.Timeout
		}
		if sc.CacheTTL == 0 {
			sc.CacheTTL = def.CacheTTL
		}
		if sc.BranchTimeout == 0 {
			sc.BranchTimeout = sc.Timeout + 5*time.Second
		}
		c.Services[st] = sc
	}
}

// Validate rejects settings the pipeline cannot honour.
func (c *Config) Validate() error {
	var problems []string
	for st, sc := range c.Services {
		if _, err := models.ParseServiceType(string(st)); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if sc.Timeout < 5*time.Second || sc.Timeout > 25*time.Second {
			problems = append(problems, fmt.Sprintf("%s timeout %s outside 5s..25s", st, sc.Timeout))
		}
		if sc.BranchTimeout < sc.Timeout {
			problems = append(problems, fmt.Sprintf("%s branch timeout shorter than provider timeout", st))
		}
	}
	seen := map[string]bool{}
	for i, p := range c.Providers {
		if p.Name == "" {
			problems = append(problems, fmt.Sprintf("provider %d has no name", i))
		}
		if seen[string(p.Service)+"/"+p.Name] {
			problems = append(problems, fmt.Sprintf("duplicate provider %s", p.Name))
		}
		seen[string(p.Service)+"/"+p.Name] = true
		if _, err := models.ParseServiceType(string(p.Service)); err != nil {
			problems = append(problems, fmt.Sprintf("provider %s: %v", p.Name, err))
		}
		switch p.Kind {
		case "", "mock":
		case "http":
			if p.URL == "" {
				problems = append(problems, fmt.Sprintf("provider %s: url required", p.Name))
			}
		default:
			problems = append(problems, fmt.Sprintf("provider %s: unknown kind %q", p.Name, p.Kind))
		}
		if p.FailRate < 0 || p.FailRate > 1 {
			problems = append(problems, fmt.Sprintf("provider %s: failRate outside [0,1]", p.Name))
		}
	}
	switch strings.ToLower(c.Clustering.Strategy) {
	case "kmeans", "dbscan", "hierarchical":
	default:
		problems = append(problems, fmt.Sprintf("unknown clustering strategy %q", c.Clustering.Strategy))
	}
	if c.Clustering.MaxRadiusKm <= 0 || c.Clustering.MaxClusters <= 0 {
		problems = append(problems, "clustering limits must be positive")
	}
	if c.PriceBands.Budget <= 0 || c.PriceBands.Luxury <= c.PriceBands.Budget {
		problems = append(problems, "price bands require 0 < budget < luxury")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
	if v := os.Getenv("TRIP_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("TRIP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRIP_LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}
	if v := os.Getenv("TRIP_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("TRIP_FALLBACK_ENABLED"); v != "" {
		cfg.Fallback.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TRIP_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("TRIP_CLUSTER_STRATEGY"); v != "" {
		cfg.Clustering.Strategy = strings.ToLower(v)
	}
	if v := os.Getenv("TRIP_DEALS_MAX_ALERTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Deals.MaxAlerts = n
		}
	}
	for _, st := range models.AllServices {
		prefix := "TRIP_" + strings.ToUpper(string(st))
		sc := cfg.Services[st]
		if v := os.Getenv(prefix + "_TIMEOUT"); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				sc.Timeout = d
			}
		}
		if v := os.Getenv(prefix + "_CACHE_TTL"); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				sc.CacheTTL = d
			}
		}
		if cfg.Services != nil {
			cfg.Services[st] = sc
		}
	}
}

// ProvidersFor returns the providers configured for a service, in declaration order.
func (c *Config) ProvidersFor(service models.ServiceType) []ProviderConfig {
	var out []ProviderConfig
	for _, p := range c.Providers {
		if p.Service == service {
			out = append(out, p)
		}
	}
	return out
}
