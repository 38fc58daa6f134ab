package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter counts requests per key in fixed Redis windows so the quota
// is shared by every instance. The window starts with the first request.
type RedisLimiter struct {
	client *redis.Client
	quota  Quota
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter. Keys are stored as
// prefix:key; prefix defaults to "ratelimit".
func NewRedisLimiter(client *redis.Client, quota Quota, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, quota: quota.orDefault(), prefix: prefix}
}

func (l *RedisLimiter) Quota() Quota {
	return l.quota
}

func (l *RedisLimiter) key(key string) string {
	return l.prefix + ":" + key
}

// Allow increments the key's window counter
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.key(key)
	open := Decision{Allowed: true, Limit: l.quota.Limit, Remaining: l.quota.Limit}

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return open, fmt.Errorf("redis error: %w", err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		// First request of the window, or a counter left without expiry
		if err := l.client.PExpire(ctx, k, l.quota.Window).Err(); err != nil {
			return open, fmt.Errorf("redis error: %w", err)
		}
		ttl = l.quota.Window
	}

	count := int(incr.Val())
	d := Decision{Limit: l.quota.Limit, Allowed: count <= l.quota.Limit}
	if d.Allowed {
		d.Remaining = l.quota.Limit - count
	} else {
		d.RetryAfter = ttl
	}
	return d, nil
}

// Remaining returns the requests left in the key's current window
func (l *RedisLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := l.client.Get(ctx, l.key(key)).Int()
	if err == redis.Nil {
		return l.quota.Limit, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	if count >= l.quota.Limit {
		return 0, nil
	}
	return l.quota.Limit - count, nil
}

// TTL returns the time until the key's window resets
func (l *RedisLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return l.client.PTTL(ctx, l.key(key)).Result()
}

// Reset clears the key's window
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.key(key)).Err()
}
