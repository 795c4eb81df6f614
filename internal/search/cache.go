package search

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/tripthesia-aggregator/internal/obs"
	"github.com/example/tripthesia-aggregator/internal/providers"
)

// Store is the injected key/value cache. Get returns ErrCacheMiss for absent or
// expired keys. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryItem struct {
	value  []byte
	expiry time.Time
}

// MemoryStore is the process-local Store with lazy expiry.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !s.now().Before(it.expiry) {
		delete(s.items, key)
		return nil, ErrCacheMiss
	}
	return it.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.items[key] = memoryItem{value: value, expiry: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

type CacheService interface {
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (AdapterResult, error)) (AdapterResult, error)
}

type inflight struct {
	waiters []chan resultOrErr
}

type resultOrErr struct {
	res AdapterResult
	err error
}

// cachedPayload is the stored form of one successful provider answer.
type cachedPayload struct {
	Provider string          `json:"provider"`
	Raw      json.RawMessage `json:"raw"`
}

// Cache stores successful raw provider answers in a Store and collapses concurrent
// identical misses so only one fan-out runs per key.
type Cache struct {
	mu      sync.Mutex
	store   Store
	pending map[string]*inflight
	metrics *obs.Metrics
	service string
}

func NewCache(store Store, service string, m *obs.Metrics) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cache{store: store, pending: make(map[string]*inflight), metrics: m, service: service}
}

func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (AdapterResult, error)) (AdapterResult, error) {
	if res, ok := c.lookup(ctx, key); ok {
		c.metrics.IncCacheHits(c.service)
		return res, nil
	}

	c.mu.Lock()
	// Collapse: if computation in progress, join waiters
	if entry, found := c.pending[key]; found {
		ch := make(chan resultOrErr, 1)
		entry.waiters = append(entry.waiters, ch)
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return AdapterResult{}, ctx.Err()
		case r := <-ch:
			return r.res, r.err
		}
	}
	entry := &inflight{}
	c.pending[key] = entry
	c.mu.Unlock()

	// Actual computation (only one goroutine does this)
	res, err := fn(ctx)
	if err == nil && !res.Fallback && len(res.Results) > 0 {
		c.save(ctx, key, res, ttl)
	}

	c.mu.Lock()
	delete(c.pending, key)
	waiters := entry.waiters
	c.mu.Unlock()

	for _, w := range waiters {
		w <- resultOrErr{res: res, err: err}
		close(w)
	}
	return res, err
}

func (c *Cache) lookup(ctx context.Context, key string) (AdapterResult, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return AdapterResult{}, false
	}
	var payloads []cachedPayload
	if err := json.Unmarshal(data, &payloads); err != nil || len(payloads) == 0 {
		_ = c.store.Delete(ctx, key)
		return AdapterResult{}, false
	}
	out := AdapterResult{CacheHit: true}
	for _, p := range payloads {
		resp, err := providers.Decode(p.Raw)
		if err != nil {
			_ = c.store.Delete(ctx, key)
			return AdapterResult{}, false
		}
		out.Results = append(out.Results, ProviderResult{Provider: p.Provider, Raw: p.Raw, Response: resp})
	}
	out.ProvidersQueried = len(out.Results)
	out.ProvidersSucceeded = len(out.Results)
	return out, true
}

func (c *Cache) save(ctx context.Context, key string, res AdapterResult, ttl time.Duration) {
	payloads := make([]cachedPayload, 0, len(res.Results))
	for _, pr := range res.Results {
		payloads = append(payloads, cachedPayload{Provider: pr.Provider, Raw: pr.Raw})
	}
	data, err := json.Marshal(payloads)
	if err != nil {
		return
	}
	_ = c.store.Set(ctx, key, data, ttl)
}
