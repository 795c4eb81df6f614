package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func okResult() AdapterResult {
	return AdapterResult{
		Results:            []ProviderResult{{Provider: "p1", Raw: []byte(`{"provider":"p1","hotels":[{"hotelId":"H1","price":90}]}`)}},
		ProvidersQueried:   1,
		ProvidersSucceeded: 1,
	}
}

func TestCacheCollapse(t *testing.T) {
	cache := NewCache(NewMemoryStore(), "hotel", nil)
	var calls int32
	fn := func(ctx context.Context) (AdapterResult, error) {
		atomic.AddInt32(&calls, 1)
		// simulate some work
		time.Sleep(50 * time.Millisecond)
		return okResult(), nil
	}

	ctx := context.Background()
	// concurrent callers
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetOrCompute(ctx, "k", time.Minute, fn); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected single compute got %d", got)
	}
}

func TestCacheHitIsTagged(t *testing.T) {
	cache := NewCache(NewMemoryStore(), "hotel", nil)
	fn := func(ctx context.Context) (AdapterResult, error) { return okResult(), nil }

	first, err := cache.GetOrCompute(context.Background(), "k", time.Minute, fn)
	if err != nil || first.CacheHit {
		t.Fatalf("first call: hit=%v err=%v", first.CacheHit, err)
	}
	second, err := cache.GetOrCompute(context.Background(), "k", time.Minute, func(ctx context.Context) (AdapterResult, error) {
		t.Fatal("compute must not run on a hit")
		return AdapterResult{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit || len(second.Results) != 1 || len(second.Results[0].Response.Hotels) != 1 {
		t.Fatalf("unexpected cached result %+v", second)
	}
}

func TestCacheSkipsFallbackAndErrors(t *testing.T) {
	store := NewMemoryStore()
	cache := NewCache(store, "hotel", nil)

	fallback := okResult()
	fallback.Fallback = true
	if _, err := cache.GetOrCompute(context.Background(), "fb", time.Minute, func(ctx context.Context) (AdapterResult, error) {
		return fallback, nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(context.Background(), "fb"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("fallback results must not be cached, got %v", err)
	}

	boom := errors.New("boom")
	if _, err := cache.GetOrCompute(context.Background(), "err", time.Minute, func(ctx context.Context) (AdapterResult, error) {
		return AdapterResult{}, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.Get(context.Background(), "err"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("errors must not be cached, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("v"), time.Minute)
	if v, err := s.Get(ctx, "k"); err != nil || string(v) != "v" {
		t.Fatalf("expected hit, got %q %v", v, err)
	}
	now = now.Add(time.Minute)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
	_ = s.Set(ctx, "k", []byte("v"), time.Minute)
	_ = s.Delete(ctx, "k")
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}
