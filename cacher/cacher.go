// Package cacher caches values that are expensive to compute, such as query
// results, behind a common interface with in-memory and Redis backends.
package cacher

import "context"

// FetchFunc produces the value for a key on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher caches values by key for a fixed TTL chosen at construction.
// Implementations are safe for concurrent use and run at most one fetch per
// key at a time within a process.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or calls fetchFn, caches
	// its result and returns it. Failed fetches are not cached.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//   - fetchFn: Function producing the value on a miss
	//
	// Returns:
	//   - The cached or fetched value
	//   - An error if the backend or fetchFn failed
	GetOrFetch(ctx context.Context, key string, fetchFn FetchFunc[T]) (T, error)

	// Purge removes every entry owned by this cacher.
	Purge(ctx context.Context) error

	// Len returns the number of entries currently cached.
	Len(ctx context.Context) (int, error)
}
