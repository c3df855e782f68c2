package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/michelrosettaa/FlowAi-sub000/internal/database"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/pkg/response"
)

// RateLimitConfig defines rate limiting parameters.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 600,
		BurstSize:         100,
	}
}

// RateLimit returns a fixed-window rate limiting middleware using Redis,
// keyed by customer when known and by client IP otherwise.
func RateLimit(redis *database.Redis, cfg RateLimitConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return RateLimitByKey(redis, cfg, logger, nil)
}

// getClientID extracts a unique identifier for the client.
func getClientID(r *http.Request) string {
	if customerID := GetCustomerID(r.Context()); customerID != "" {
		return "customer:" + customerID
	}
	return "ip:" + getRealIP(r)
}

// getRealIP extracts the real client IP, considering proxies.
func getRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	return r.RemoteAddr
}

// RateLimitByKey returns a rate limiter that uses a custom key extractor.
func RateLimitByKey(redis *database.Redis, cfg RateLimitConfig, logger *slog.Logger, keyFunc func(*http.Request) string) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg = DefaultRateLimitConfig()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var clientID string
			if keyFunc != nil {
				clientID = keyFunc(r)
			}
			if clientID == "" {
				clientID = getClientID(r)
			}

			window := time.Now().Unix() / 60
			key := fmt.Sprintf("ratelimit:%s:%d", clientID, window)

			count, err := redis.IncrWithExpire(r.Context(), key, time.Minute)
			if err != nil {
				// Fail open: billing checks must not depend on the limiter.
				logger.Warn("rate limiter unavailable",
					slog.String("client", clientID),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			limit := cfg.RequestsPerMinute
			remaining := limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			resetTime := (window + 1) * 60

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

			if int(count) > limit+cfg.BurstSize {
				rateLimitedTotal.Inc()
				retryAfter := resetTime - time.Now().Unix()
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				response.Error(w, apierrors.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
