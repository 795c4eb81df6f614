// Package trip fans one multi-service trip request out to the per-service search
// pipelines and merges their results into bundles and quality signals.
package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/tripthesia-aggregator/internal/catalog"
	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/obs"
	"github.com/example/tripthesia-aggregator/internal/search"
)

const (
	CodeTimeout         = "timeout"
	CodeProviderFailure = "provider_failure"
	CodeValidation      = "validation"
	CodeUnavailable     = "unavailable"

	DefaultBranchTimeout = 20 * time.Second
)

// ServiceError is the structured record of a failed branch.
type ServiceError struct {
	Service models.ServiceType `json:"service"`
	Code    string             `json:"code"`
	Message string             `json:"message"`
}

func (e ServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Service, e.Code, e.Message)
}

// Searcher runs the pipeline of one service type. *search.Engine implements it.
type Searcher interface {
	Has(service models.ServiceType) bool
	Search(ctx context.Context, q models.SearchQuery) (search.SearchResult, error)
}

// OfferObserver consumes every offer of a completed trip search.
type OfferObserver interface {
	Observe(ctx context.Context, userID string, offers []models.Offer)
}

type Meta struct {
	ServicesQueried   []models.ServiceType `json:"servicesQueried"`
	ServicesResponded []models.ServiceType `json:"servicesResponded"`
	Errors            []ServiceError       `json:"errors"`
	Warnings          []string             `json:"warnings"`
	Currency          string               `json:"currency"`
	SearchTimeMs      int64                `json:"searchTimeMs"`
}

type Result struct {
	Results         map[models.ServiceType]*search.SearchResult `json:"results"`
	Recommendations Recommendations                             `json:"recommendations"`
	Quality         Quality                                     `json:"quality"`
	Meta            Meta                                        `json:"meta"`
}

type Options struct {
	BranchTimeouts map[models.ServiceType]time.Duration
	Catalog        *catalog.Catalog
	Observer       OfferObserver
	Metrics        *obs.Metrics
	Logger         *slog.Logger
}

type Orchestrator struct {
	searcher Searcher
	timeouts map[models.ServiceType]time.Duration
	cat      *catalog.Catalog
	observer OfferObserver
	metrics  *obs.Metrics
	logger   *slog.Logger
}

func NewOrchestrator(searcher Searcher, opts Options) *Orchestrator {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	return &Orchestrator{
		searcher: searcher,
		timeouts: opts.BranchTimeouts,
		cat:      opts.Catalog,
		observer: opts.Observer,
		metrics:  opts.Metrics,
		logger:   obs.OrDefault(opts.Logger),
	}
}

type branchOutcome struct {
	service models.ServiceType
	result  *search.SearchResult
	err     *ServiceError
}

// Search runs every requested service concurrently. Only an invalid request is
// returned as an error; failed branches are reported in Meta.Errors and the
// result stays well formed even when every branch failed.
func (o *Orchestrator) Search(ctx context.Context, req models.TripRequest) (Result, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	services, _ := req.RequestedServices()

	outcomes := make([]branchOutcome, len(services))
	var wg sync.WaitGroup
	for i, st := range services {
		wg.Add(1)
		go func(i int, st models.ServiceType) {
			defer wg.Done()
			outcomes[i] = o.branch(ctx, req, st)
		}(i, st)
	}
	wg.Wait()

	res := Result{
		Results: make(map[models.ServiceType]*search.SearchResult, len(services)),
		Meta: Meta{
			ServicesQueried:   services,
			ServicesResponded: []models.ServiceType{},
			Errors:            []ServiceError{},
			Warnings:          []string{},
			Currency:          req.Preferences.Currency,
		},
	}
	if res.Meta.Currency == "" {
		res.Meta.Currency = search.DefaultCurrency
	}

	var all []models.Offer
	for _, out := range outcomes {
		if out.err != nil {
			o.metrics.IncBranchFailure(string(out.service), out.err.Code)
			o.logger.Warn("service branch failed",
				slog.String("service", string(out.service)),
				slog.String("code", out.err.Code),
				slog.String("error", out.err.Message),
			)
			res.Meta.Errors = append(res.Meta.Errors, *out.err)
			continue
		}
		res.Results[out.service] = out.result
		res.Meta.ServicesResponded = append(res.Meta.ServicesResponded, out.service)
		res.Meta.Warnings = append(res.Meta.Warnings, warningsFor(out.service, out.result.Meta)...)
		all = append(all, out.result.Offers...)
	}

	res.Recommendations = o.recommend(res.Results, res.Meta.ServicesResponded, req.Preferences, res.Meta.Currency)
	res.Quality = assessQuality(res.Results, res.Meta.ServicesResponded)
	res.Meta.SearchTimeMs = time.Since(start).Milliseconds()

	if o.observer != nil && len(all) > 0 {
		o.observer.Observe(ctx, req.UserID, all)
	}

	o.logger.Info("trip search completed",
		slog.Int("services", len(services)),
		slog.Int("responded", len(res.Meta.ServicesResponded)),
		slog.Int("errors", len(res.Meta.Errors)),
		slog.Int64("duration_ms", res.Meta.SearchTimeMs),
	)
	return res, nil
}

func (o *Orchestrator) branchTimeout(st models.ServiceType) time.Duration {
	if d, ok := o.timeouts[st]; ok && d > 0 {
		return d
	}
	return DefaultBranchTimeout
}

func (o *Orchestrator) branch(ctx context.Context, req models.TripRequest, st models.ServiceType) (out branchOutcome) {
	out.service = st
	defer func() {
		if r := recover(); r != nil {
			out.result = nil
			out.err = &ServiceError{Service: st, Code: CodeProviderFailure, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if !o.searcher.Has(st) {
		out.err = &ServiceError{Service: st, Code: CodeUnavailable, Message: "service not configured"}
		return out
	}
	q := req.QueryFor(st)
	if err := q.Validate(); err != nil {
		out.err = &ServiceError{Service: st, Code: CodeValidation, Message: err.Error()}
		return out
	}

	bctx, cancel := context.WithTimeout(ctx, o.branchTimeout(st))
	defer cancel()
	res, err := o.searcher.Search(bctx, q)
	if err != nil {
		out.err = classify(st, err, bctx.Err())
		return out
	}
	out.result = &res
	return out
}

func classify(st models.ServiceType, err, ctxErr error) *ServiceError {
	var verr *models.ValidationError
	code := CodeProviderFailure
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctxErr, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.As(err, &verr):
		code = CodeValidation
	case errors.Is(err, search.ErrUnsupportedService):
		code = CodeUnavailable
	}
	return &ServiceError{Service: st, Code: code, Message: err.Error()}
}

func warningsFor(st models.ServiceType, m search.Meta) []string {
	var out []string
	if m.Fallback {
		out = append(out, fmt.Sprintf("%s: providers unavailable, showing estimated offers", st))
	}
	if failed := m.ProvidersQueried - m.ProvidersSucceeded; failed > 0 && !m.Fallback && !m.CacheHit {
		out = append(out, fmt.Sprintf("%s: %d of %d providers failed", st, failed, m.ProvidersQueried))
	}
	return out
}
