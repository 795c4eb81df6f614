package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/obs"
	"github.com/example/tripthesia-aggregator/internal/providers"
)

type AdapterService interface {
	Search(ctx context.Context, q models.SearchQuery) (AdapterResult, error)
}

// AdapterOptions configures one service's adapter.
type AdapterOptions struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	Cache    CacheService
	Fallback FallbackStrategy
	Metrics  *obs.Metrics
	Logger   *slog.Logger
}

// Adapter queries every provider of one service type in parallel, each call under its
// own timeout, and waits for all of them. When nothing usable comes back it asks the
// fallback strategy, unless the caller has already gone away.
type Adapter struct {
	service   models.ServiceType
	providers []Provider
	timeout   time.Duration
	ttl       time.Duration
	cache     CacheService
	fallback  FallbackStrategy
	metrics   *obs.Metrics
	logger    *slog.Logger
}

func NewAdapter(service models.ServiceType, ps []Provider, opts AdapterOptions) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Adapter{
		service:   service,
		providers: ps,
		timeout:   opts.Timeout,
		ttl:       opts.CacheTTL,
		cache:     opts.Cache,
		fallback:  opts.Fallback,
		metrics:   opts.Metrics,
		logger:    obs.OrDefault(opts.Logger),
	}
}

func (a *Adapter) Service() models.ServiceType { return a.service }

func (a *Adapter) Search(ctx context.Context, q models.SearchQuery) (AdapterResult, error) {
	ps := a.allowed(q.Preferences)
	if a.cache == nil || a.ttl <= 0 {
		return a.fanOut(ctx, q, ps)
	}
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name())
	}
	key := q.CacheKey(names...)
	return a.cache.GetOrCompute(ctx, key, a.ttl, func(ctx context.Context) (AdapterResult, error) {
		return a.fanOut(ctx, q, ps)
	})
}

func (a *Adapter) allowed(prefs models.Preferences) []Provider {
	out := make([]Provider, 0, len(a.providers))
	for _, p := range a.providers {
		if prefs.AllowsProvider(p.Name()) {
			out = append(out, p)
		}
	}
	return out
}

type callOutcome struct {
	result *ProviderResult
	err    error
}

func (a *Adapter) fanOut(ctx context.Context, q models.SearchQuery, ps []Provider) (AdapterResult, error) {
	outcomes := make([]callOutcome, len(ps))
	var wg sync.WaitGroup
	for i, p := range ps {
		wg.Add(1)
		go func(i int, pr Provider) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = callOutcome{err: fmt.Errorf("panic: %v", r)}
				}
			}()
			outcomes[i] = a.call(ctx, q, pr)
		}(i, p)
	}
	wg.Wait()

	out := AdapterResult{ProvidersQueried: len(ps)}
	for i, o := range outcomes {
		if o.err != nil {
			name := ps[i].Name()
			a.metrics.IncProviderFailure(name)
			a.logger.Warn("provider failed",
				slog.String("service", string(a.service)),
				slog.String("provider", name),
				slog.Any("error", o.err),
			)
			out.Errors = append(out.Errors, &ProviderError{Provider: name, Err: o.err})
			continue
		}
		out.Results = append(out.Results, *o.result)
	}
	out.ProvidersSucceeded = len(out.Results)
	if len(out.Results) > 0 {
		return out, nil
	}

	// the caller gave up; synthesizing now would only waste work
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("%s search: %w", a.service, err)
	}
	if a.fallback == nil {
		return out, fmt.Errorf("%s search: %w", a.service, ErrNoOffers)
	}

	start := time.Now()
	raw, err := a.fallback.Generate(ctx, q)
	if err == nil {
		var resp providers.Response
		resp, err = providers.Decode(raw)
		if err == nil && resp.Len(a.service) == 0 {
			err = errors.New("fallback produced no items")
		}
		if err == nil {
			a.metrics.IncFallback(string(a.service))
			a.logger.Info("serving synthesized offers",
				slog.String("service", string(a.service)),
				slog.Int("provider_errors", len(out.Errors)),
			)
			out.Fallback = true
			out.Results = append(out.Results, ProviderResult{
				Provider: a.fallback.Name(),
				Raw:      raw,
				Response: resp,
				Fallback: true,
				Latency:  time.Since(start),
			})
			return out, nil
		}
	}
	return out, fmt.Errorf("%s search: fallback: %v: %w", a.service, err, ErrNoOffers)
}

func (a *Adapter) call(ctx context.Context, q models.SearchQuery, p Provider) callOutcome {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type reply struct {
		raw []byte
		err error
	}
	// buffered so a provider that ignores cctx can still finish and exit
	done := make(chan reply, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		raw, err := p.Search(cctx, q)
		done <- reply{raw: raw, err: err}
	}()

	var raw []byte
	select {
	case rep := <-done:
		if rep.err != nil {
			a.metrics.ObserveProviderLatency(p.Name(), time.Since(start).Seconds())
			return callOutcome{err: rep.err}
		}
		raw = rep.raw
	case <-cctx.Done():
		a.metrics.ObserveProviderLatency(p.Name(), time.Since(start).Seconds())
		return callOutcome{err: cctx.Err()}
	}
	latency := time.Since(start)
	a.metrics.ObserveProviderLatency(p.Name(), latency.Seconds())
	resp, err := providers.Decode(raw)
	if err != nil {
		return callOutcome{err: fmt.Errorf("malformed payload: %w", err)}
	}
	if resp.Len(a.service) == 0 {
		return callOutcome{err: errors.New("empty response")}
	}
	return callOutcome{result: &ProviderResult{Provider: p.Name(), Raw: raw, Response: resp, Latency: latency}}
}
