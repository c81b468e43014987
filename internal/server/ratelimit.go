package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitDecision reports the outcome of one rate-limit check.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RateLimiter decides whether a keyed caller may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateLimitDecision, error)
}

// RedisRateLimiter is a fixed-window counter in Redis, so the limit holds
// across all server instances sharing the Redis.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration

	// now is injectable for tests
	now func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow increments the caller's counter for the current window. The key
// embeds the window start, so counters reset naturally when the window
// rolls over and expire shortly after.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (RateLimitDecision, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	reset := windowStart.Add(l.window)
	counterKey := fmt.Sprintf("ratelimit:proxy:%s:%d", key, windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	pipe.Expire(ctx, counterKey, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return RateLimitDecision{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incr.Val()
	decision := RateLimitDecision{
		Allowed: count <= int64(l.limit),
		Limit:   l.limit,
		Reset:   reset,
	}
	if remaining := l.limit - int(count); remaining > 0 {
		decision.Remaining = remaining
	}
	return decision, nil
}

// Compile-time check
var _ RateLimiter = (*RedisRateLimiter)(nil)
