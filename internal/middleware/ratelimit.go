package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter is an in-memory sliding-window limiter keyed by caller IP.
// State is per-process; the OTP issue path additionally relies on the
// challenge upsert to bound per-identifier churn.
type RateLimiter struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	window  time.Duration
	maxHits int
}

// NewRateLimiter creates a limiter allowing maxHits per window per key.
func NewRateLimiter(window time.Duration, maxHits int) *RateLimiter {
	rl := &RateLimiter{
		hits:    make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
	}
	go rl.sweep()
	return rl
}

// Allow records a hit for key and reports whether it stays inside the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	kept := rl.hits[key][:0]
	for _, t := range rl.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rl.maxHits {
		rl.hits[key] = kept
		return false
	}
	rl.hits[key] = append(kept, time.Now())
	return true
}

// sweep drops idle keys so the map does not grow without bound.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.window)
		for key, hits := range rl.hits {
			live := false
			for _, t := range hits {
				if t.After(cutoff) {
					live = true
					break
				}
			}
			if !live {
				delete(rl.hits, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Limit wraps a handler with the limiter, keyed by client IP.
func Limit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(IPKey(r)) {
				respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKey extracts the client IP for rate limiting, preferring X-Forwarded-For.
func IPKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return "ip:" + strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return "ip:" + r.RemoteAddr
}
