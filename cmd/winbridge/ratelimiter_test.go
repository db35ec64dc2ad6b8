package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winbridge/internal/middleware"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(10, 100*time.Millisecond)

	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow("127.0.0.1") {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed)
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter(5, 100*time.Millisecond)
	ip := "192.168.1.1"

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(ip), "request %d", i+1)
	}
	assert.False(t, rl.Allow(ip))

	time.Sleep(110 * time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(ip), "request %d after reset", i+1)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	assert.True(t, rl.Allow("10.0.0.2"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.False(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_DropsExpiredIPs(t *testing.T) {
	rl := NewRateLimiter(5, 50*time.Millisecond)
	for i := 0; i < 20; i++ {
		rl.Allow(fmt.Sprintf("10.1.0.%d", i))
	}

	time.Sleep(60 * time.Millisecond)
	rl.Allow("10.2.0.1")

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.Len(t, rl.requests, 1)
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(50, time.Second)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if rl.Allow("203.0.113.9") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed.Load())
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(nil, newNullLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/webhook/lifecycle", nil))
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/webhook/lifecycle", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.JSONEq(t, `{"success":false,"error":"rate limit exceeded"}`, second.Body.String())
}

func TestRateLimiter_MiddlewareIgnoresForwardedFromUntrustedPeer(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	proxies, err := middleware.ParseTrustedProxies([]string{"10.0.0.1"})
	require.NoError(t, err)
	handler := rl.Middleware(proxies, newNullLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook/lifecycle", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// rotating the header from a direct caller does not reset its budget
	assert.Equal(t, http.StatusNoContent, send("203.0.113.5:1000", "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.5:1001", "198.51.100.2"))

	// behind the trusted proxy each forwarded client has its own budget
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:2000", "198.51.100.3"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:2001", "198.51.100.4"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:2002", "198.51.100.4"))
}
