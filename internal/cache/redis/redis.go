package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sl:"

const defaultTTL = time.Hour

// Cache is a Redis-backed cache tier for shortID -> targetURL mappings.
// Entries expire after a TTL; eviction is otherwise left to Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func New(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		ttl:    defaultTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Init verifies connectivity to the Redis server.
func (c *Cache) Init(ctx context.Context) error {
	const op = "cache.redis.Cache.Init"

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%s: failed to ping redis: %w", op, err)
	}

	return nil
}

// Get looks up the target URL for a short identifier. A missing entry is
// reported through the boolean, not as an error.
func (c *Cache) Get(ctx context.Context, shortID string) (string, bool, error) {
	const op = "cache.redis.Cache.Get"

	targetURL, err := c.client.Get(ctx, keyPrefix+shortID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("%s: failed to get cache entry: %w", op, err)
	}

	return targetURL, true, nil
}

func (c *Cache) Set(ctx context.Context, shortID, targetURL string) error {
	const op = "cache.redis.Cache.Set"

	if err := c.client.Set(ctx, keyPrefix+shortID, targetURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set cache entry: %w", op, err)
	}

	return nil
}

func (c *Cache) Delete(ctx context.Context, shortID string) error {
	const op = "cache.redis.Cache.Delete"

	if err := c.client.Del(ctx, keyPrefix+shortID).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete cache entry: %w", op, err)
	}

	return nil
}
