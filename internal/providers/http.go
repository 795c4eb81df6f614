package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/example/tripthesia-aggregator/internal/models"
)

const maxPayloadBytes = 8 << 20

// HTTPOptions configures an HTTPProvider.
type HTTPOptions struct {
	Endpoint       string
	RequestsPerSec float64
	Burst          int
	MaxRetries     int
	Client         *http.Client
}

// HTTPProvider posts the canonical query as JSON to a remote supplier endpoint and
// returns its body verbatim. Requests are paced by a token bucket; retries are off
// unless MaxRetries is set, and 4xx answers are never retried.
type HTTPProvider struct {
	name       string
	endpoint   string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

func NewHTTPProvider(name string, opts HTTPOptions) *HTTPProvider {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &HTTPProvider{
		name:       name,
		endpoint:   opts.Endpoint,
		client:     opts.Client,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.Burst),
		maxRetries: opts.MaxRetries,
	}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Search(ctx context.Context, q models.SearchQuery) ([]byte, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	var out []byte
	operation := func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := &HTTPStatusError{StatusCode: resp.StatusCode}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
		if err != nil {
			return err
		}
		out = data
		return nil
	}

	var strategy backoff.BackOff = &backoff.StopBackOff{}
	if p.maxRetries > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 200 * time.Millisecond
		exp.MaxElapsedTime = 0
		strategy = backoff.WithMaxRetries(exp, uint64(p.maxRetries))
	}
	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

// HTTPStatusError represents a non-200 answer from a supplier endpoint.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("supplier answered %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
