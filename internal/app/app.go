package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/tripthesia-aggregator/internal/catalog"
	"github.com/example/tripthesia-aggregator/internal/clustering"
	"github.com/example/tripthesia-aggregator/internal/config"
	"github.com/example/tripthesia-aggregator/internal/deals"
	handlers "github.com/example/tripthesia-aggregator/internal/http"
	mid "github.com/example/tripthesia-aggregator/internal/middleware"
	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/notify"
	"github.com/example/tripthesia-aggregator/internal/obs"
	"github.com/example/tripthesia-aggregator/internal/providers"
	"github.com/example/tripthesia-aggregator/internal/routes"
	"github.com/example/tripthesia-aggregator/internal/search"
	"github.com/example/tripthesia-aggregator/internal/trip"
)

type App struct {
	Router       http.Handler
	Engine       *search.Engine
	Orchestrator *trip.Orchestrator
	Detector     *deals.Detector
	Hub          *notify.Hub
	Metrics      *obs.Metrics
	Logger       *slog.Logger
}

// SetAppConfig wires every component from cfg.
func SetAppConfig(cfg *config.Config, logger *slog.Logger) (*App, error) {
	cat := catalog.Default()
	if cfg.Catalog.Path != "" {
		loaded, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		cat = loaded
	}

	customRegistry := prometheus.NewRegistry()
	metrics := obs.NewMetrics(customRegistry)

	strategy, err := clustering.StrategyByName(cfg.Clustering.Strategy)
	if err != nil {
		return nil, err
	}
	clusterOpts := clustering.Options{
		MaxClusters:         cfg.Clustering.MaxClusters,
		MinHotelsPerCluster: cfg.Clustering.MinHotelsPerCluster,
		MaxRadiusKm:         cfg.Clustering.MaxRadiusKm,
		Seed:                cfg.Clustering.Seed,
	}

	inventory := providers.NewSynthetic(cat)
	var fallback search.FallbackStrategy
	if cfg.Fallback.Enabled {
		fallback = inventory
	}

	normalizer := search.NewNormalizer(cat)
	ranker := search.NewRanker(cat)
	store := search.NewMemoryStore()
	engine := search.NewEngine()
	branchTimeouts := make(map[models.ServiceType]time.Duration, len(models.AllServices))

	for _, st := range models.AllServices {
		ps, err := buildProviders(cfg.ProvidersFor(st), st, inventory)
		if err != nil {
			return nil, err
		}
		sc := cfg.Services[st]
		branchTimeouts[st] = sc.BranchTimeout
		adapter := search.NewAdapter(st, ps, search.AdapterOptions{
			Timeout:  sc.Timeout,
			CacheTTL: sc.CacheTTL,
			Cache:    search.NewCache(store, string(st), metrics),
			Fallback: fallback,
			Metrics:  metrics,
			Logger:   logger,
		})
		opts := search.ServiceOptions{
			Normalizer: normalizer,
			Ranker:     ranker,
			Metrics:    metrics,
			Logger:     logger,
		}
		if st == models.ServiceHotel {
			opts.Clusterer = clustering.NewGeographic(strategy, clusterOpts)
			opts.BudgetThreshold = cfg.PriceBands.Budget
			opts.LuxuryThreshold = cfg.PriceBands.Luxury
		}
		engine.Register(st, search.NewService(st, adapter, opts))
	}

	hub := notify.NewHub(logger)
	detector := deals.NewDetector(deals.Options{
		MaxAlerts: cfg.Deals.MaxAlerts,
		Window:    cfg.Deals.Window,
		Catalog:   cat,
		Notifier:  hub,
		Metrics:   metrics,
		Logger:    logger,
	})
	orchestrator := trip.NewOrchestrator(engine, trip.Options{
		BranchTimeouts: branchTimeouts,
		Catalog:        cat,
		Observer:       detector,
		Metrics:        metrics,
		Logger:         logger,
	})

	h := handlers.NewHandler(handlers.Deps{
		Engine:     engine,
		Trips:      orchestrator,
		Deals:      detector,
		Alerts:     hub,
		Clustering: clusterOpts,
		Strategy:   cfg.Clustering.Strategy,
		BudgetBand: cfg.PriceBands.Budget,
		LuxuryBand: cfg.PriceBands.Luxury,
	})

	var rl *mid.IPRateLimiter
	if cfg.Server.RateLimit.RequestsPerMinute > 0 {
		rl = mid.NewIPRateLimiter(cfg.Server.RateLimit.RequestsPerMinute, cfg.Server.RateLimit.Burst)
	}
	router := routes.GetRoutes(h, metrics, logger, routes.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimiter:    rl,
	})

	logger.Info("application wired",
		slog.Int("providers", len(cfg.Providers)),
		slog.String("clustering", cfg.Clustering.Strategy),
		slog.Bool("fallback", cfg.Fallback.Enabled),
	)

	return &App{
		Router:       router,
		Engine:       engine,
		Orchestrator: orchestrator,
		Detector:     detector,
		Hub:          hub,
		Metrics:      metrics,
		Logger:       logger,
	}, nil
}

func buildProviders(list []config.ProviderConfig, st models.ServiceType, inventory *providers.Synthetic) ([]search.Provider, error) {
	out := make([]search.Provider, 0, len(list))
	for i, pc := range list {
		switch pc.Kind {
		case "", "mock":
			out = append(out, providers.NewMockProvider(pc.Name, st, inventory, pc.AvgLatency, pc.FailRate, int64(i)))
		case "http":
			out = append(out, providers.NewHTTPProvider(pc.Name, providers.HTTPOptions{
				Endpoint:       pc.URL,
				RequestsPerSec: pc.RequestsPerSec,
				MaxRetries:     pc.MaxRetries,
			}))
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", pc.Name, pc.Kind)
		}
	}
	return out, nil
}
