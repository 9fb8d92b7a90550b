package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	jsonwriter "github.com/dgellow/identity-bot/internal/json"
	"github.com/dgellow/identity-bot/internal/log"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupEvery = time.Minute
	limiterIdleAfter    = 3 * time.Minute
)

// RateLimiter is a per-client token bucket keyed by remote IP
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	// trustProxy takes the client from X-Forwarded-For instead of RemoteAddr
	trustProxy bool
	now        func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given
// burst per client. Clients are keyed on the connection's remote address
// unless trustProxyHeaders is set.
func NewRateLimiter(requestsPerSecond float64, burst int, trustProxyHeaders bool) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*clientLimiter),
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		trustProxy: trustProxyHeaders,
		now:        time.Now,
	}
}

// reserve takes a token for key and reports how long the caller would have to wait
func (rl *RateLimiter) reserve(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	rl.mu.Unlock()

	if cl.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := cl.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

// Run drops idle client buckets until ctx is done
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

func (rl *RateLimiter) prune() int {
	cutoff := rl.now().Add(-limiterIdleAfter)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	pruned := 0
	for key, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			pruned++
		}
	}
	return pruned
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := rl.clientIP(r)
			if ok, retryAfter := rl.reserve(ip); !ok {
				log.LogWarnWithFields("ratelimit", "Request rate limited", map[string]any{
					"client": ip,
					"path":   r.URL.Path,
				})
				jsonwriter.WriteTooManyRequests(w, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the remote host, or the first X-Forwarded-For hop when the
// limiter trusts proxy headers
func (rl *RateLimiter) clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); rl.trustProxy && xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
