package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/tripthesia-aggregator/internal/obs"
)

func TestIPRateLimiter_BurstThenRefill(t *testing.T) {
	rl := NewIPRateLimiter(60, 2)
	now := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("burst requests must pass")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("third request within the same instant must be rejected")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("buckets are per IP")
	}

	now = now.Add(time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("one token refills per second at 60 rpm")
	}
}

func TestIPRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewIPRateLimiter(60, 1)
	now := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("1.2.3.4")
	now = now.Add(2 * time.Minute)
	rl.Allow("5.6.7.8")
	if _, ok := rl.buckets["1.2.3.4"]; ok {
		t.Fatal("idle bucket must be swept")
	}
}

func TestRateLimit_RejectsWith429(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := obs.NewMetrics(reg)
	h := RateLimit(NewIPRateLimiter(60, 1), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/search/hotel", nil)
		req.RemoteAddr = "1.2.3.4:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var drops float64
	for _, f := range families {
		if f.GetName() == "trip_ratelimit_drops_total" {
			drops = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if drops != 1 {
		t.Errorf("rate limit drops = %v, want 1", drops)
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	h := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !hasDeadline {
		t.Fatal("request context must carry a deadline")
	}
}
