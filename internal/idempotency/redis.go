package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "webhook:event:"

// RedisGuard stores event markers in Redis with a TTL.
// Use this when running more than one replica; SETNX makes the duplicate
// check atomic across instances.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard creates a Redis-backed guard from a redis:// URL.
// A ttl of zero uses DefaultTTL.
func NewRedisGuard(url string, ttl time.Duration) (*RedisGuard, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}, nil
}

func (g *RedisGuard) Begin(ctx context.Context, eventID, eventType string) (bool, error) {
	fresh, err := g.client.SetNX(ctx, redisKeyPrefix+eventID, eventType, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record event marker: %w", err)
	}
	return fresh, nil
}

func (g *RedisGuard) Abort(ctx context.Context, eventID string) error {
	if err := g.client.Del(ctx, redisKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to remove event marker: %w", err)
	}
	return nil
}

// SweepExpired is a no-op; Redis expires markers itself.
func (g *RedisGuard) SweepExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

// Ping verifies connectivity at startup.
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
