package routes

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	handlers "github.com/example/tripthesia-aggregator/internal/http"
	mid "github.com/example/tripthesia-aggregator/internal/middleware"
	"github.com/example/tripthesia-aggregator/internal/obs"
)

// Options tunes the API middleware stack.
type Options struct {
	RequestTimeout time.Duration
	// RateLimiter guards the /v1 API; nil disables limiting.
	RateLimiter *mid.IPRateLimiter
}

func GetRoutes(h *handlers.Handler, metrics *obs.Metrics, logger *slog.Logger, opts Options) *chi.Mux {
	r := chi.NewRouter()
	// Useful built-in middlewares
	r.Use(middleware.RealIP)    // proper client IP extraction
	r.Use(middleware.RequestID) // sets request ID header
	r.Use(middleware.Recoverer) // built-in recoverer to avoid panics taking server down

	// our custom middlewares: metrics & logging
	r.Use(mid.MetricsMiddleware(metrics))
	r.Use(mid.LoggingMiddleware(logger))

	r.Get("/healthz", h.Healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		// long-lived, so outside the request timeout
		r.Get("/alerts/ws", h.AlertsWS)

		r.Group(func(r chi.Router) {
			if opts.RateLimiter != nil {
				r.Use(mid.RateLimit(opts.RateLimiter, metrics))
			}
			r.Use(mid.TimeoutMiddleware(opts.RequestTimeout))

			r.Post("/search/{service}", h.Search)
			r.Post("/trips/search", h.SearchTrip)
			r.Post("/hotels/clusters", h.Clusters)
			r.Post("/deals/analyze", h.AnalyzeDeals)
			r.Post("/deals/history", h.RecordHistory)
			r.Get("/deals/history", h.GetHistory)
		})
	})

	return r
}
