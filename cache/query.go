package cache

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// Querier composes data-fetch functions with a Store.
type Querier struct {
	store  Store
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
	loads  atomic.Int64
}

// Stats is a snapshot of Querier counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Loads  int64 `json:"loads"`
}

// NewQuerier creates a Querier on the given store.
func NewQuerier(store Store) *Querier {
	return &Querier{store: store}
}

// Store returns the underlying store.
func (q *Querier) Store() Store {
	return q.store
}

// Invalidate removes keys from the store. Call it after every write that
// changes what those keys describe.
func (q *Querier) Invalidate(ctx context.Context, keys ...string) {
	q.store.Delete(ctx, keys...)
}

// Stats returns the current hit, miss and load counters.
// Misses counts cache lookups that failed; Loads counts calls to query
// functions, which is lower than Misses when concurrent misses were merged.
func (q *Querier) Stats() Stats {
	return Stats{
		Hits:   q.hits.Load(),
		Misses: q.misses.Load(),
		Loads:  q.loads.Load(),
	}
}

// Fetch returns the value cached under key if it is still fresh. Otherwise it
// calls fn, caches a successful result for ttl and returns it.
//
// Concurrent misses for the same key wait for a single call to fn and share
// its result. The shared call is detached from every caller's cancellation:
// a caller whose ctx ends stops waiting and gets ctx.Err(), while the call
// runs on and fills the cache for the others.
// Errors from fn are returned to every waiter and are not cached.
func Fetch[T any](ctx context.Context, q *Querier, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var out T
	if q.store.Get(ctx, key, &out) {
		q.hits.Inc()
		return out, nil
	}
	q.misses.Inc()

	detached := context.WithoutCancel(ctx)
	ch := q.group.DoChan(key, func() (any, error) {
		// A flight that finished between our lookup and DoChan already filled the store.
		var cached T
		if q.store.Get(detached, key, &cached) {
			return cached, nil
		}

		q.loads.Inc()
		val, err := fn(detached)
		if err != nil {
			return nil, err
		}
		q.store.Set(detached, key, val, ttl)
		return val, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}
