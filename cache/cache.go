// Package cache provides the read-side caching layer for catalog queries.
//
// A Store holds opaque values under caller-built keys such as
// "articles:true:false:1:20". Two implementations are provided:
//
//   - Memory: a process-local TTL cache with lazy eviction and an optional
//     LRU bound on the number of entries.
//   - Redis: a JSON-encoded cache shared by every instance using the same Redis.
//
// Stores never return errors. A backend failure is logged and reported as a
// miss, so a degraded cache slows requests down but never fails them.
//
// Read paths go through a Querier, which returns the cached value while it is
// fresh and otherwise runs the query, caches its result and returns it.
// Concurrent misses for the same key share one query:
//
//	q := cache.NewQuerier(cache.NewMemory())
//	articles, err := cache.Fetch(ctx, q, "articles:true:false:1:20", 5*time.Minute,
//		func(ctx context.Context) ([]Article, error) {
//			return repo.ListArticles(ctx, filter)
//		})
//
// Writes invalidate the affected keys explicitly:
//
//	q.Invalidate(ctx, "articles:true:false:1:20")
package cache

import (
	"context"
	"time"
)

// Store is the storage strategy behind a Querier.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get copies the value stored under key into dest, which must be a non-nil
	// pointer. Returns false on a miss, an expired entry, or any backend error.
	Get(ctx context.Context, key string, dest any) bool

	// Set stores value under key for ttl, replacing any existing entry.
	Set(ctx context.Context, key string, value any, ttl time.Duration)

	// Delete removes the given keys immediately.
	Delete(ctx context.Context, keys ...string)
}
