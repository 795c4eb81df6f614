package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing,
// which keeps library code and tests free of registry plumbing.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	CacheHitsTotal      *prometheus.CounterVec
	RateLimitDropsTotal prometheus.Counter

	ProviderErrors      *prometheus.CounterVec
	ProviderLatency     *prometheus.HistogramVec
	FallbacksTotal      *prometheus.CounterVec
	BranchFailures      *prometheus.CounterVec
	DealsDetected       *prometheus.CounterVec
	AlertsTotal         *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	Registry            *prometheus.Registry
}

// Create Prometheus collectors and register them
func NewMetrics(p *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_search_requests_total",
			Help: "Total number of search requests per service",
		}, []string{"service"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_cache_hits_total",
			Help: "Number of provider response cache hits",
		}, []string{"service"}),
		RateLimitDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trip_ratelimit_drops_total",
			Help: "Requests dropped due to rate limiting",
		}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_errors_total",
			Help: "Errors returned by each provider",
		}, []string{"provider"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_latency_seconds",
				Help:    "Latency between adapter and provider",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_fallbacks_total",
			Help: "Searches answered by synthesized inventory",
		}, []string{"service"}),
		BranchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_branch_failures_total",
			Help: "Failed service branches of trip searches",
		}, []string{"service", "code"}),
		DealsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_deals_detected_total",
			Help: "Deals detected by type",
		}, []string{"type"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_alerts_total",
			Help: "Deal alerts emitted by urgency",
		}, []string{"urgency"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		Registry: p,
	}

	// Register metrics with Prometheus
	p.MustRegister(
		m.RequestsTotal,
		m.CacheHitsTotal,
		m.RateLimitDropsTotal,
		m.ProviderErrors,
		m.ProviderLatency,
		m.FallbacksTotal,
		m.BranchFailures,
		m.DealsDetected,
		m.AlertsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsTotal,
	)

	return m
}

func (m *Metrics) IncRequests(service string) {
	if m != nil {
		m.RequestsTotal.WithLabelValues(service).Inc()
	}
}

func (m *Metrics) IncCacheHits(service string) {
	if m != nil {
		m.CacheHitsTotal.WithLabelValues(service).Inc()
	}
}

func (m *Metrics) IncRateLimitDrops() {
	if m != nil {
		m.RateLimitDropsTotal.Inc()
	}
}

func (m *Metrics) ObserveProviderLatency(provider string, seconds float64) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(provider).Observe(seconds)
	}
}

func (m *Metrics) IncProviderFailure(provider string) {
	if m != nil {
		m.ProviderErrors.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) IncFallback(service string) {
	if m != nil {
		m.FallbacksTotal.WithLabelValues(service).Inc()
	}
}

func (m *Metrics) IncBranchFailure(service, code string) {
	if m != nil {
		m.BranchFailures.WithLabelValues(service, code).Inc()
	}
}

func (m *Metrics) IncDeal(dealType string) {
	if m != nil {
		m.DealsDetected.WithLabelValues(dealType).Inc()
	}
}

func (m *Metrics) IncAlert(urgency string) {
	if m != nil {
		m.AlertsTotal.WithLabelValues(urgency).Inc()
	}
}

func (m *Metrics) ObserveHTTPRequestDuration(method string, path string, status string, seconds float64) {
	if m != nil {
		m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
	}
}

func (m *Metrics) IncHTTPRequestsTotal(method string, path string, status string) {
	if m != nil {
		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
