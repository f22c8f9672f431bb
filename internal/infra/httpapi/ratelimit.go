package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// RateLimiter allows at most rate requests per client within a fixed window
// that starts at the client's first request. Counters expire with the window.
type RateLimiter struct {
	buckets     *cache.Cache
	rate        int
	behindProxy bool
}

// NewRateLimiter keys clients by peer address. With behindProxy set, the
// address the proxy appended to X-Forwarded-For is used instead.
func NewRateLimiter(rate int, window time.Duration, behindProxy bool) *RateLimiter {
	return &RateLimiter{
		buckets:     cache.New(window, 2*window),
		rate:        rate,
		behindProxy: behindProxy,
	}
}

// Allow checks if a request from the given client should be allowed
func (rl *RateLimiter) Allow(client string) bool {
	if err := rl.buckets.Add(client, 1, cache.DefaultExpiration); err == nil {
		return true
	}

	n, err := rl.buckets.IncrementInt(client, 1)
	if err != nil {
		// Window expired between Add and IncrementInt.
		rl.buckets.Set(client, 1, cache.DefaultExpiration)
		return true
	}

	return n <= rl.rate
}

// Middleware returns an HTTP middleware that applies rate limiting
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.behindProxy {
		// Earlier entries come from the caller and can't be trusted.
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			hops := strings.Split(forwarded, ",")
			if last := strings.TrimSpace(hops[len(hops)-1]); last != "" {
				return last
			}
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
