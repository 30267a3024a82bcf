package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/turtacn/TransitLedger/pkg/errors"
)

// RateLimitInfo is the state of one client's bucket after a request.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter decides whether the client identified by key may proceed.
type RateLimiter interface {
	Allow(key string) (bool, RateLimitInfo)
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter is an in-process token bucket limiter keyed by client.
type TokenBucketLimiter struct {
	rate    float64
	burst   int
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// NewTokenBucketLimiter allows rate requests per second with bursts of
// burst requests.
func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{rate: rate, burst: burst, now: time.Now, buckets: make(map[string]*tokenBucket)}
}

// Allow consumes one token of key's bucket when available.
func (l *TokenBucketLimiter) Allow(key string) (bool, RateLimitInfo) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(l.burst), lastRefill: now}
		l.buckets[key] = b
	}
	b.tokens = min(float64(l.burst), b.tokens+now.Sub(b.lastRefill).Seconds()*l.rate)
	b.lastRefill = now

	info := RateLimitInfo{Limit: l.burst, ResetAt: now.Add(time.Duration(float64(time.Second) / l.rate))}
	if b.tokens < 1 {
		return false, info
	}
	b.tokens--
	info.Remaining = int(b.tokens)
	return true, info
}

// Sweep drops buckets idle for longer than idle. Full buckets carry no
// state worth keeping.
func (l *TokenBucketLimiter) Sweep(idle time.Duration) int {
	threshold := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if b.lastRefill.Before(threshold) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// RateLimit returns middleware that answers 429 once a client exhausts its
// bucket. Clients are keyed by remote address, which chi's RealIP
// middleware has already resolved from proxy headers.
func RateLimit(limiter RateLimiter, skipPaths ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			allowed, info := limiter.Allow(clientIP(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			if !allowed {
				retry := int(time.Until(info.ResetAt).Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{
						"code":    string(errors.ErrCodeTooManyRequests),
						"message": "rate limit exceeded, please retry later",
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
