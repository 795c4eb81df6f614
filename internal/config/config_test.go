package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/tripthesia-aggregator/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRIP_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := map[models.ServiceType]time.Duration{
		models.ServiceFlight:    15 * time.Second,
		models.ServiceHotel:     10 * time.Second,
		models.ServiceTransport: 20 * time.Second,
		models.ServiceCarRental: 12 * time.Second,
	}
	for st, d := range want {
		if got := cfg.Services[st].Timeout; got != d {
			t.Errorf("%s timeout = %s, want %s", st, got, d)
		}
	}
	if cfg.Services[models.ServiceTransport].CacheTTL != time.Hour {
		t.Errorf("unexpected transport ttl %s", cfg.Services[models.ServiceTransport].CacheTTL)
	}
	if len(cfg.ProvidersFor(models.ServiceHotel)) != 3 {
		t.Errorf("expected three default hotel providers")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  address: ":9090"
services:
  hotel:
    timeout: 8s
clustering:
  strategy: dbscan
  maxClusters: 4
  minHotelsPerCluster: 3
  maxRadiusKm: 4
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRIP_LOG_LEVEL", "debug")
	t.Setenv("TRIP_FLIGHT_TIMEOUT", "7s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	hotel := cfg.Services[models.ServiceHotel]
	if hotel.Timeout != 8*time.Second || hotel.CacheTTL != 30*time.Minute {
		t.Errorf("hotel service = %+v", hotel)
	}
	if cfg.Services[models.ServiceFlight].Timeout != 7*time.Second {
		t.Errorf("flight timeout = %s", cfg.Services[models.ServiceFlight].Timeout)
	}
	if cfg.Clustering.Strategy != "dbscan" || cfg.Clustering.MinHotelsPerCluster != 3 {
		t.Errorf("clustering = %+v", cfg.Clustering)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestValidateRejectsOutOfRangeTimeout(t *testing.T) {
	cfg := defaultConfig()
	sc := cfg.Services[models.ServiceHotel]
	sc.Timeout = time.Second
	cfg.Services[models.ServiceHotel] = sc
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for 1s timeout")
	}
}

func TestValidateRejectsHTTPProviderWithoutURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Providers = append(cfg.Providers, ProviderConfig{Name: "remote", Service: models.ServiceHotel, Kind: "http"})
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "url required") {
		t.Fatalf("expected url error, got %v", err)
	}
}
