package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	handlers "github.com/example/tripthesia-aggregator/internal/http"
	"github.com/example/tripthesia-aggregator/internal/obs"
)

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. Buckets idle for longer than
// the refill period of a full bucket are dropped on the next sweep.
type IPRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewIPRateLimiter allows perMinute requests per IP with the given burst.
func NewIPRateLimiter(perMinute, burst int) *IPRateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		buckets: make(map[string]*ipBucket),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		idle:    time.Minute * time.Duration(burst) / time.Duration(perMinute),
		now:     time.Now,
	}
}

func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	if now.Sub(rl.lastSweep) > time.Minute {
		rl.sweep(now)
	}
	b, ok := rl.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (rl *IPRateLimiter) sweep(now time.Time) {
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.idle {
			delete(rl.buckets, ip)
		}
	}
	rl.lastSweep = now
}

// RateLimit rejects requests over the per-IP budget with 429.
func RateLimit(rl *IPRateLimiter, m *obs.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				m.IncRateLimitDrops()
				handlers.TooManyRequests(w, "rate limit exceeded", handlers.RequestMeta(r))
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
