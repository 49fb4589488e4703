package cacher

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCacher is an in-process Cacher built on go-cache. Concurrent misses
// for the same key share one fetch through singleflight.
type MemoryCacher[T any] struct {
	cache *cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewMemoryCacher creates a MemoryCacher whose entries expire after ttl.
// Expired entries are swept every 2*ttl.
//
// Parameters:
//   - ttl: Lifetime of a cached entry; must be positive
//
// Returns:
//   - A new MemoryCacher
func NewMemoryCacher[T any](ttl time.Duration) *MemoryCacher[T] {
	return &MemoryCacher[T]{
		cache: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// GetOrFetch implements Cacher.
func (c *MemoryCacher[T]) GetOrFetch(ctx context.Context, key string, fetchFn FetchFunc[T]) (T, error) {
	var zero T

	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have filled the entry already.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		v, err := fetchFn(ctx)
		if err != nil {
			return zero, err
		}

		c.cache.Set(key, v, c.ttl)
		return v, nil
	})
	if err != nil {
		return zero, err
	}

	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type %T in cache for key %s", val, key)
	}

	return typed, nil
}

// Purge implements Cacher.
func (c *MemoryCacher[T]) Purge(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Flush()
	return nil
}

// Len implements Cacher.
func (c *MemoryCacher[T]) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return c.cache.ItemCount(), nil
}

func (c *MemoryCacher[T]) lookup(key string) (T, bool) {
	if v, found := c.cache.Get(key); found {
		if typed, ok := v.(T); ok {
			return typed, true
		}
	}

	var zero T
	return zero, false
}
