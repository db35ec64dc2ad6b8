package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"winbridge/internal/metrics"
	"winbridge/internal/middleware"
	"winbridge/internal/privacy"
)

// RateLimiter is a sliding-window request counter keyed by client IP
type RateLimiter struct {
	mu       sync.RWMutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow records a request from ip and reports whether it is within the limit
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	for key, times := range rl.requests {
		if key == ip {
			continue
		}
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(rl.requests, key)
		}
	}

	recent := rl.requests[ip][:0]
	for _, t := range rl.requests[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rl.limit {
		rl.requests[ip] = recent
		return false
	}
	rl.requests[ip] = append(recent, now)
	return true
}

// Middleware rejects callers over the limit with 429
func (rl *RateLimiter) Middleware(proxies *middleware.TrustedProxies, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := proxies.ClientIP(r)
			if !rl.Allow(ip) {
				metrics.IncrementCounter("rate_limited_total", map[string]string{"path": r.URL.Path}, "Requests rejected by the rate limiter")
				logger.WithField("remote_ip", privacy.MaskID(ip)).Warn("Rate limit exceeded")
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Success: false, Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
