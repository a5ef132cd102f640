package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/seralis/hermes/internal/redis"
)

// RateLimiter throttles per-client request rates through Redis. When no
// Redis client is configured it passes everything through.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	if rl.rdb == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		result, err := rl.rdb.CheckRateLimit(r.Context(), "ip:"+ip, rl.limit, rl.window)
		if err != nil {
			// Redis being down should not take the API with it.
			GetLogger(r.Context()).Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rl.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
