package cacher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisCacher is a Cacher storing JSON-encoded values in Redis under a key
// prefix, so several servers can share cached results. Concurrent misses
// within one process share a fetch through singleflight.
type RedisCacher[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

// NewRedisCacher creates a RedisCacher.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	queries := NewRedisCacher[kvstore.QueryResult](client, "kvstore:query:", time.Minute)
//
// Parameters:
//   - client: The Redis client
//   - prefix: Namespace prepended to every key; Purge and Len only see keys under it
//   - ttl: Lifetime of a cached entry
//
// Returns:
//   - A new RedisCacher
func NewRedisCacher[T any](client *redis.Client, prefix string, ttl time.Duration) *RedisCacher[T] {
	return &RedisCacher[T]{client: client, prefix: prefix, ttl: ttl}
}

// GetOrFetch implements Cacher.
func (c *RedisCacher[T]) GetOrFetch(ctx context.Context, key string, fetchFn FetchFunc[T]) (T, error) {
	var zero T
	fullKey := c.prefix + key

	if v, ok, err := c.get(ctx, fullKey); err != nil || ok {
		return v, err
	}

	val, err, _ := c.group.Do(fullKey, func() (any, error) {
		v, err := fetchFn(ctx)
		if err != nil {
			return zero, fmt.Errorf("fetch function failed: %w", err)
		}

		data, err := json.Marshal(v)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal result: %w", err)
		}

		if err := c.client.Set(ctx, fullKey, data, c.ttl).Err(); err != nil {
			return zero, fmt.Errorf("failed to cache result: %w", err)
		}

		return v, nil
	})
	if err != nil {
		return zero, err
	}

	return val.(T), nil
}

// Purge implements Cacher. It deletes every key under the prefix.
func (c *RedisCacher[T]) Purge(ctx context.Context) error {
	keys, err := c.keys(ctx)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}

	return nil
}

// Len implements Cacher.
func (c *RedisCacher[T]) Len(ctx context.Context) (int, error) {
	keys, err := c.keys(ctx)
	return len(keys), err
}

func (c *RedisCacher[T]) get(ctx context.Context, fullKey string) (T, bool, error) {
	var zero T

	raw, err := c.client.Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("redis get error: %w", err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return v, true, nil
}

// keys lists the keys under the prefix using SCAN.
func (c *RedisCacher[T]) keys(ctx context.Context) ([]string, error) {
	var keys []string

	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	return keys, nil
}
