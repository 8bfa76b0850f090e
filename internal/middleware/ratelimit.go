package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/darsh8000an/study-buddy-matcher/internal/handlers"
	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
)

type counterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimiter counts requests per caller in fixed windows stored in Redis.
// Authenticated callers are keyed by user ID, others by client IP.
type RateLimiter struct {
	store  counterStore
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRateLimiter(store counterStore, limit int, window time.Duration, prefix string) *RateLimiter {
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
		prefix: prefix,
		now:    time.Now,
	}
}

// NewMatchRequestLimiter limits how fast one user can send match requests.
func NewMatchRequestLimiter(store counterStore, perHour int) *RateLimiter {
	return NewRateLimiter(store, perHour, time.Hour, "ratelimit:match-requests")
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.store == nil || rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("%s:%s", rl.prefix, rl.callerKey(r))
		allowed, remaining, resetTime, err := rl.isAllowed(r.Context(), key)
		if err != nil {
			logging.Warn("Rate limiter unavailable", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", resetTime-rl.now().Unix()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Rate limit exceeded. Please try again later."}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) callerKey(r *http.Request) string {
	if userID := handlers.GetUserIDFromContext(r.Context()); userID != uuid.Nil {
		return "user:" + userID.String()
	}
	return "ip:" + getClientIP(r)
}

func (rl *RateLimiter) isAllowed(ctx context.Context, key string) (allowed bool, remaining int, resetTime int64, err error) {
	windowEnd := rl.now().Truncate(rl.window).Add(rl.window)

	count, err := rl.store.Incr(ctx, key).Result()
	if err != nil {
		return true, rl.limit, windowEnd.Unix(), err
	}
	// First hit in the window owns the expiry.
	if count == 1 {
		if err := rl.store.Expire(ctx, key, rl.window).Err(); err != nil {
			return true, rl.limit, windowEnd.Unix(), err
		}
	}

	remaining = rl.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return int(count) <= rl.limit, remaining, windowEnd.Unix(), nil
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
