package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/tripthesia-aggregator/internal/clustering"
	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/providers"
)

var (
	// ErrNoOffers means every provider failed and no fallback could answer.
	ErrNoOffers = errors.New("no offers available")
	// ErrCacheMiss is returned by a Store when the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")
	// ErrUnsupportedService is returned for services without a configured pipeline.
	ErrUnsupportedService = errors.New("service not configured")
)

// Provider is the collaborator boundary for inventory sources: given the canonical
// query, return provider JSON or fail.
type Provider interface {
	Name() string
	Search(ctx context.Context, q models.SearchQuery) ([]byte, error)
}

// FallbackStrategy synthesizes an answer when every provider of a service came back empty.
type FallbackStrategy interface {
	Name() string
	Generate(ctx context.Context, q models.SearchQuery) ([]byte, error)
}

// ProviderResult is one provider's decoded answer, discarded after normalization.
type ProviderResult struct {
	Provider string
	Raw      []byte
	Response providers.Response
	Fallback bool
	Latency  time.Duration
}

// ProviderError records why a provider contributed nothing.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("provider %s: %v", e.Provider, e.Err) }

func (e *ProviderError) Unwrap() error { return e.Err }

// AdapterResult is what one adapter invocation collected.
type AdapterResult struct {
	Results            []ProviderResult
	Errors             []*ProviderError
	CacheHit           bool
	Fallback           bool
	ProvidersQueried   int
	ProvidersSucceeded int
}

// Providers lists the names of providers that contributed results.
func (r AdapterResult) Providers() []string {
	out := make([]string, 0, len(r.Results))
	for _, pr := range r.Results {
		out = append(out, pr.Provider)
	}
	return out
}

type Meta struct {
	Service            models.ServiceType `json:"service"`
	TotalResults       int                `json:"totalResults"`
	SearchTimeMs       int64              `json:"searchTimeMs"`
	Providers          []string           `json:"providers"`
	Currency           string             `json:"currency"`
	CacheHit           bool               `json:"cacheHit"`
	Fallback           bool               `json:"fallback"`
	ProvidersQueried   int                `json:"providersQueried"`
	ProvidersSucceeded int                `json:"providersSucceeded"`
	ProviderErrors     []string           `json:"providerErrors,omitempty"`
}

// SearchResult is the outbound shape of one service search.
type SearchResult struct {
	Offers     []models.Offer         `json:"offers"`
	Meta       Meta                   `json:"meta"`
	Filters    Filters                `json:"filters"`
	Clusters   []clustering.Cluster   `json:"clusters,omitempty"`
	PriceBands []clustering.PriceBand `json:"priceBands,omitempty"`
}
