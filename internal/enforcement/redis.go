package enforcement

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes consulted by the edge gateway.
const (
	blockKeyPrefix     = "crowsnest:block:"
	rateLimitKeyPrefix = "crowsnest:ratelimit:"
)

// RedisEnforcer records enforcement decisions in Redis keys that the
// edge gateway consults on every request. Block entries carry no TTL;
// rate-limit entries expire after the configured duration.
type RedisEnforcer struct {
	client       *redis.Client
	rateLimitTTL time.Duration
}

// NewRedisEnforcer connects to Redis and returns an enforcer.
func NewRedisEnforcer(redisURL string, rateLimitTTL time.Duration) (*RedisEnforcer, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisEnforcer{client: client, rateLimitTTL: rateLimitTTL}, nil
}

// NewRedisEnforcerWithClient wraps an existing client, used in tests.
func NewRedisEnforcerWithClient(client *redis.Client, rateLimitTTL time.Duration) *RedisEnforcer {
	return &RedisEnforcer{client: client, rateLimitTTL: rateLimitTTL}
}

// Block marks the identity as blocked.
func (e *RedisEnforcer) Block(ctx context.Context, identity string) error {
	if err := e.client.Set(ctx, blockKeyPrefix+identity, time.Now().UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("block %s: %w", identity, err)
	}
	return nil
}

// RateLimit marks the identity for throttling until the TTL elapses.
func (e *RedisEnforcer) RateLimit(ctx context.Context, identity string) error {
	if err := e.client.Set(ctx, rateLimitKeyPrefix+identity, time.Now().UTC().Format(time.RFC3339), e.rateLimitTTL).Err(); err != nil {
		return fmt.Errorf("rate limit %s: %w", identity, err)
	}
	return nil
}

// IsBlocked reports whether the identity is currently blocked.
func (e *RedisEnforcer) IsBlocked(ctx context.Context, identity string) (bool, error) {
	n, err := e.client.Exists(ctx, blockKeyPrefix+identity).Result()
	if err != nil {
		return false, fmt.Errorf("check block %s: %w", identity, err)
	}
	return n > 0, nil
}

// IsRateLimited reports whether the identity is currently throttled.
func (e *RedisEnforcer) IsRateLimited(ctx context.Context, identity string) (bool, error) {
	n, err := e.client.Exists(ctx, rateLimitKeyPrefix+identity).Result()
	if err != nil {
		return false, fmt.Errorf("check rate limit %s: %w", identity, err)
	}
	return n > 0, nil
}

// Unblock removes a block entry, used when an operator lifts a block.
func (e *RedisEnforcer) Unblock(ctx context.Context, identity string) error {
	if err := e.client.Del(ctx, blockKeyPrefix+identity).Err(); err != nil {
		return fmt.Errorf("unblock %s: %w", identity, err)
	}
	return nil
}

// Close releases the Redis client.
func (e *RedisEnforcer) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
