package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhalm/canonlog"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisTimeout bounds every Redis round trip made by the cache.
const DefaultRedisTimeout = 250 * time.Millisecond

// Redis is a Store backed by Redis. Values are JSON encoded, so a Get decodes
// into a fresh value rather than sharing memory with the writer.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix (default: "cache:").
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTimeout bounds each Redis call (default: 250ms).
func WithTimeout(timeout time.Duration) RedisOption {
	return func(r *Redis) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// NewRedis creates a Redis cache on an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  client,
		prefix:  "cache:",
		timeout: DefaultRedisTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get decodes the value stored under key into dest.
// Misses, decode failures and backend errors all return false.
func (r *Redis) Get(ctx context.Context, key string, dest any) bool {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		logCacheError(ctx, fmt.Errorf("redis cache get %q: %w", key, err))
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		logCacheError(ctx, fmt.Errorf("redis cache decode %q: %w", key, err))
		return false
	}
	return true
}

// Set encodes value as JSON and stores it under key for ttl.
// A non-positive ttl removes the key instead.
func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		r.Delete(ctx, key)
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		logCacheError(ctx, fmt.Errorf("redis cache encode %q: %w", key, err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		logCacheError(ctx, fmt.Errorf("redis cache set %q: %w", key, err))
	}
}

// Delete removes keys with a single DEL.
func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = r.prefix + key
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		logCacheError(ctx, fmt.Errorf("redis cache delete: %w", err))
	}
}

// Close releases the Redis client connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func logCacheError(ctx context.Context, err error) {
	if _, ok := canonlog.TryGetLogger(ctx); ok {
		canonlog.InfoAdd(ctx, "cache_error", err.Error())
		return
	}
	slog.WarnContext(ctx, "cache backend error", "error", err)
}
