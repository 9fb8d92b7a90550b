package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, 2, false)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/start", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:2222").Code)

	limited := call("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	// Other clients have their own bucket
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1111").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:4444").Code)
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(1, 1, false)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.reserve("a")
	now = now.Add(2 * time.Minute)
	rl.reserve("b")
	now = now.Add(2 * time.Minute)

	assert.Equal(t, 1, rl.prune())
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "b")
}

func TestRateLimiter_SpoofedForwardedForIsStillLimited(t *testing.T) {
	rl := NewRateLimiter(1, 1, false)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	call := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
		req.RemoteAddr = "198.51.100.9:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.3"))
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "198.51.100.9")
}

func TestRateLimiter_TrustedProxySplitsClients(t *testing.T) {
	rl := NewRateLimiter(1, 1, true)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	call := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/auth/start", nil)
		req.RemoteAddr = "10.0.0.1:80"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("192.168.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("192.168.1.1"))
	assert.Equal(t, http.StatusOK, call("192.168.1.2"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		xff        string
		want       string
	}{
		{name: "remote_addr", remoteAddr: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "forwarded_ignored_by_default", remoteAddr: "10.0.0.1:80", xff: "203.0.113.7, 10.0.0.1", want: "10.0.0.1"},
		{name: "forwarded_first_hop_when_trusted", trustProxy: true, remoteAddr: "10.0.0.1:80", xff: "203.0.113.7, 10.0.0.1", want: "203.0.113.7"},
		{name: "blank_forwarded", trustProxy: true, remoteAddr: "192.0.2.1:5555", xff: " ", want: "192.0.2.1"},
		{name: "no_port", remoteAddr: "192.0.2.1", want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(1, 1, tt.trustProxy)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, rl.clientIP(req))
		})
	}
}
