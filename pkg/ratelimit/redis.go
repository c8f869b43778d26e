package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter implements fixed-window rate limiting backed by Redis so
// counters are shared across multiple processes.
type RedisLimiter struct {
	redis    *redis.Client
	config   Config
	prefix   string
	failOpen bool
}

// NewRedisLimiter creates a Redis-backed fixed-window limiter. When
// failOpen is true, Redis errors allow the request instead of denying it,
// so a degraded counter store cannot take the service down.
func NewRedisLimiter(client *redis.Client, config Config, prefix string, failOpen bool) *RedisLimiter {
	if config.Limit <= 0 || config.Window <= 0 {
		config = SensitiveOperationConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		redis:    client,
		config:   config,
		prefix:   prefix,
		failOpen: failOpen,
	}
}

// Allow increments the (subject, operation) counter atomically via a Redis
// pipeline and compares it to the limit.
func (l *RedisLimiter) Allow(ctx context.Context, subjectID, operationKey string) (bool, error) {
	key := fmt.Sprintf("%s:%s:%s", l.prefix, operationKey, subjectID)

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.config.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return l.failOpen, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(l.config.Limit), nil
}

// Remaining returns the number of invocations left in the current window.
func (l *RedisLimiter) Remaining(ctx context.Context, subjectID, operationKey string) (int, error) {
	key := fmt.Sprintf("%s:%s:%s", l.prefix, operationKey, subjectID)

	count, err := l.redis.Get(ctx, key).Int()
	if err == redis.Nil {
		return l.config.Limit, nil
	} else if err != nil {
		return 0, err
	}

	remaining := l.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// TTL returns the time until the window for a key resets.
func (l *RedisLimiter) TTL(ctx context.Context, subjectID, operationKey string) (time.Duration, error) {
	key := fmt.Sprintf("%s:%s:%s", l.prefix, operationKey, subjectID)
	return l.redis.TTL(ctx, key).Result()
}

// Reset clears the counter for a key (for testing or admin purposes).
func (l *RedisLimiter) Reset(ctx context.Context, subjectID, operationKey string) error {
	key := fmt.Sprintf("%s:%s:%s", l.prefix, operationKey, subjectID)
	return l.redis.Del(ctx, key).Err()
}
