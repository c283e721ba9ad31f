package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

const defaultTTL = 5 * time.Minute

// Cache is an in-process cache tier built on ristretto, intended to sit in
// front of slower tiers. Entries are costed by count, not size, and expire
// after a TTL to bound staleness across instances.
type Cache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func New(maxItems int64, opts ...Option) (*Cache, error) {
	const op = "cache.memory.New"

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create cache: %w", op, err)
	}

	c := &Cache{
		cache: cache,
		ttl:   defaultTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Cache) Init(ctx context.Context) error {
	return nil
}

func (c *Cache) Get(ctx context.Context, shortID string) (string, bool, error) {
	v, ok := c.cache.Get(shortID)
	if !ok {
		return "", false, nil
	}

	targetURL, ok := v.(string)
	if !ok {
		return "", false, nil
	}

	return targetURL, true, nil
}

func (c *Cache) Set(ctx context.Context, shortID, targetURL string) error {
	c.cache.SetWithTTL(shortID, targetURL, 1, c.ttl)
	return nil
}

func (c *Cache) Delete(ctx context.Context, shortID string) error {
	c.cache.Del(shortID)
	return nil
}

// Wait blocks until buffered writes have been applied. Ristretto applies Set
// asynchronously, so readers that need set-then-get visibility (tests,
// mostly) must call Wait in between.
func (c *Cache) Wait() {
	c.cache.Wait()
}

func (c *Cache) Close() {
	c.cache.Close()
}
