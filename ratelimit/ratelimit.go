// Package ratelimit provides admission control for mutating catalog endpoints.
//
// A Limiter answers "may this identifier perform one more request?" against a
// Backend. Two backends are provided:
//
//   - Memory: a process-local fixed-window counter. Expired records are swept
//     lazily on every call, so no background goroutine is needed.
//   - Redis: a sliding-window log kept in a sorted set per identifier and
//     evaluated atomically by a Lua script. Limits are shared by every
//     instance that talks to the same Redis.
//
// The Limiter never fails a request because of its backend. When the primary
// backend returns an error (Redis unreachable, timeout) the failure is logged
// and the call is answered by an in-memory fallback instead.
//
// Basic usage:
//
//	limiter := ratelimit.New(ratelimit.NewMemory())
//	res := limiter.Allow(ctx, ratelimit.Identifier("login", ip), 5)
//	if !res.Success {
//		// reject with 429, res.ResetTime is the backoff hint
//	}
//
// Distributed deployments:
//
//	limiter := ratelimit.New(ratelimit.NewRedis(client),
//		ratelimit.WithWindow(15*time.Minute),
//	)
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nhalm/canonlog"
)

// DefaultWindow is the window length used when none is configured.
const DefaultWindow = 15 * time.Minute

// ErrLimitExceeded is returned by Result.Err when the request was not admitted.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Result is the outcome of a single admission check.
type Result struct {
	// Success reports whether the request was admitted.
	Success bool

	// Remaining is the number of requests still allowed in the current window.
	// It is never negative.
	Remaining int

	// ResetTime is when the window (or the oldest counted request) expires.
	// Zero when the backend could not determine it.
	ResetTime time.Time
}

// Err returns ErrLimitExceeded when the request was rejected, nil otherwise.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return ErrLimitExceeded
}

// RetryAfter returns the time until ResetTime, rounded up to whole seconds.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.ResetTime.IsZero() {
		return 0
	}
	d := r.ResetTime.Sub(now)
	if d <= 0 {
		return 0
	}
	return (d + time.Second - 1).Truncate(time.Second)
}

// Backend defines the storage strategy behind a Limiter.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Hit records one request for identifier and reports whether it is admitted
	// under maxRequests per window.
	Hit(ctx context.Context, identifier string, maxRequests int, window time.Duration) (Result, error)

	// Reset forgets all requests recorded for identifier.
	Reset(ctx context.Context, identifier string) error

	// Close releases any resources held by the backend.
	Close() error
}

// Limiter admits or rejects requests using a primary Backend, falling back to
// an in-memory backend when the primary fails.
type Limiter struct {
	primary  Backend
	fallback *Memory
	window   time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow sets the default window length (default: 15 minutes).
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithFallback sets the in-memory backend used when the primary fails.
// By default a fresh Memory is created unless the primary is itself a Memory.
func WithFallback(m *Memory) Option {
	return func(l *Limiter) {
		l.fallback = m
	}
}

// New creates a Limiter around the given primary backend.
func New(primary Backend, opts ...Option) *Limiter {
	l := &Limiter{
		primary: primary,
		window:  DefaultWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fallback == nil {
		if m, ok := primary.(*Memory); ok {
			l.fallback = m
		} else {
			l.fallback = NewMemory()
		}
	}
	return l
}

// Window returns the default window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allow records a request for identifier using the default window.
func (l *Limiter) Allow(ctx context.Context, identifier string, maxRequests int) Result {
	return l.AllowWindow(ctx, identifier, maxRequests, l.window)
}

// AllowWindow records a request for identifier using an explicit window.
// Backend failures are absorbed: the error is attached to the request log and
// the decision is made by the in-memory fallback for this call.
func (l *Limiter) AllowWindow(ctx context.Context, identifier string, maxRequests int, window time.Duration) Result {
	res, err := l.primary.Hit(ctx, identifier, maxRequests, window)
	if err == nil {
		return res
	}

	if _, ok := canonlog.TryGetLogger(ctx); ok {
		canonlog.InfoAdd(ctx, "ratelimit_fallback", err.Error())
	} else {
		slog.WarnContext(ctx, "rate limit backend failed, using in-memory fallback",
			"identifier", identifier, "error", err)
	}

	// The fallback is process-local and never errors.
	res, _ = l.fallback.Hit(ctx, identifier, maxRequests, window)
	return res
}

// Reset clears identifier in both the primary and the fallback backend.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	_ = l.fallback.Reset(ctx, identifier)
	if Backend(l.fallback) == l.primary {
		return nil
	}
	if err := l.primary.Reset(ctx, identifier); err != nil {
		return fmt.Errorf("ratelimit reset: %w", err)
	}
	return nil
}

// Close releases the primary and fallback backends.
func (l *Limiter) Close() error {
	var errs []error
	if err := l.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	if Backend(l.fallback) != l.primary {
		if err := l.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Identifier builds the "<action>:<client-ip>" key used for rate limiting.
func Identifier(action, clientIP string) string {
	var b strings.Builder
	b.Grow(len(action) + 1 + len(clientIP))
	b.WriteString(action)
	b.WriteByte(':')
	b.WriteString(clientIP)
	return b.String()
}
