package modules

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the shared-store ActivationCache for multi-instance
// deployments. It layers the same TTL semantics over redis so all instances
// observe one freshness window.
type RedisCache struct {
	client *redis.Client
	inner  *Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache wraps a store with a redis-shared activation cache.
func NewRedisCache(client *redis.Client, store Store, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		inner:  NewCache(store, ttl, logger),
		ttl:    ttl,
		logger: logger,
	}
}

// IsActive consults redis first and falls back to the store (via the local
// cache) on a miss or a redis outage.
func (c *RedisCache) IsActive(ctx context.Context, key string) bool {
	val, err := c.client.Get(ctx, c.redisKey(key)).Result()
	if err == nil {
		return val == "1"
	}
	if err != redis.Nil && c.logger != nil {
		c.logger.Warn("module cache read failed", slog.String("module", key), slog.Any("error", err))
	}

	active := c.inner.lookup(ctx, key)

	stored := "0"
	if active {
		stored = "1"
	}
	if err := c.client.Set(ctx, c.redisKey(key), stored, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("module cache write failed", slog.String("module", key), slog.Any("error", err))
	}
	return active
}

func (c *RedisCache) redisKey(key string) string {
	return "module_active:" + key
}
