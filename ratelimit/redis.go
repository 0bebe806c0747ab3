package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript atomically trims a sorted-set request log to the window,
// counts what is left and records the new request only if it is admitted.
// A rejected request is never added, so retries while throttled do not push
// the reset time further out.
//
// KEYS[1] = log key
// ARGV[1] = now (ms), ARGV[2] = window (ms), ARGV[3] = max requests, ARGV[4] = member
// Returns {admitted, count, oldestScore}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local admitted = 0
if count < limit then
    redis.call('ZADD', key, now, ARGV[4])
    count = count + 1
    admitted = 1
end
if count > 0 then
    redis.call('PEXPIRE', key, window)
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
    oldest = tonumber(first[2])
end
return {admitted, count, oldest}
`)

// DefaultRedisTimeout bounds every Redis round trip made by the backend.
const DefaultRedisTimeout = 250 * time.Millisecond

// Redis is a sliding-window implementation of Backend backed by Redis sorted sets.
// Each identifier owns one sorted set whose members are per-request tokens
// scored by request time. Limits are shared across every process using the
// same Redis and key prefix.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// RedisOption configures a Redis backend.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix (default: "ratelimit:").
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTimeout bounds each Redis call (default: 250ms). A slow store then
// surfaces as an error, which the Limiter answers from its fallback.
func WithTimeout(timeout time.Duration) RedisOption {
	return func(r *Redis) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithRedisClock replaces time.Now, mainly for tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		r.now = now
	}
}

// NewRedis creates a Redis backend on an existing client.
// The client is not pinged; connection problems surface on Hit.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  client,
		prefix:  "ratelimit:",
		timeout: DefaultRedisTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hit records a request in the identifier's sliding window.
func (r *Redis) Hit(ctx context.Context, identifier string, maxRequests int, window time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := r.now()
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}

	result, err := slidingWindowScript.Run(ctx, r.client, []string{r.prefix + identifier},
		now.UnixMilli(),
		windowMs,
		maxRequests,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis rate limit failed: %w", err)
	}
	if len(result) != 3 {
		return Result{}, fmt.Errorf("unexpected result length: got %d, want 3", len(result))
	}

	admitted, count, oldest := result[0] == 1, int(result[1]), result[2]
	resetTime := time.UnixMilli(oldest + windowMs)

	if !admitted {
		return Result{Success: false, Remaining: 0, ResetTime: resetTime}, nil
	}
	return Result{Success: true, Remaining: max(0, maxRequests-count), ResetTime: resetTime}, nil
}

// Count returns the number of requests currently inside identifier's window.
func (r *Redis) Count(ctx context.Context, identifier string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	minScore := fmt.Sprintf("(%d", r.now().Add(-window).UnixMilli())
	n, err := r.client.ZCount(ctx, r.prefix+identifier, minScore, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis count failed: %w", err)
	}
	return n, nil
}

// Reset removes the request log for identifier.
func (r *Redis) Reset(ctx context.Context, identifier string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+identifier).Err(); err != nil {
		return fmt.Errorf("redis reset failed: %w", err)
	}
	return nil
}

// Close releases the Redis client connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
