package ratelimit

import (
	"context"
	"sync"
	"time"
)

type record struct {
	count     int
	resetTime time.Time
}

// Memory is a fixed-window, in-memory implementation of Backend.
//
// Each identifier gets a window that starts on its first request and lasts for
// the window duration. Up to maxRequests are admitted inside that window; the
// count starts over once the window has passed. A burst just before a window
// boundary followed by another just after can therefore admit up to twice
// maxRequests in a short span. Use the Redis backend when a true sliding window
// is required.
//
// State is local to the process: separate instances do not share limits.
type Memory struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		records: make(map[string]*record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hit records a request and reports whether it fits in the current window.
// Expired records of every identifier are swept before the check, which keeps
// memory bounded by the number of identifiers active within one window.
func (m *Memory) Hit(_ context.Context, identifier string, maxRequests int, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	rec, exists := m.records[identifier]
	if !exists {
		if maxRequests <= 0 {
			return Result{Success: false, Remaining: 0, ResetTime: now.Add(window)}, nil
		}
		m.records[identifier] = &record{
			count:     1,
			resetTime: now.Add(window),
		}
		return Result{Success: true, Remaining: maxRequests - 1, ResetTime: now.Add(window)}, nil
	}

	if rec.count >= maxRequests {
		return Result{Success: false, Remaining: 0, ResetTime: rec.resetTime}, nil
	}

	rec.count++
	return Result{Success: true, Remaining: maxRequests - rec.count, ResetTime: rec.resetTime}, nil
}

// Count returns the requests recorded for identifier in its current window.
// Returns 0 if the identifier is unknown or its window has passed.
func (m *Memory) Count(identifier string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.records[identifier]
	if !exists || !m.now().Before(rec.resetTime) {
		return 0
	}
	return rec.count
}

// Len returns the number of tracked identifiers, including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Reset removes the record for identifier.
func (m *Memory) Reset(_ context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, identifier)
	return nil
}

// Close drops all records.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.records = make(map[string]*record)
	m.mu.Unlock()
	return nil
}

// sweep must be called with m.mu held.
func (m *Memory) sweep(now time.Time) {
	for key, rec := range m.records {
		if !now.Before(rec.resetTime) {
			delete(m.records, key)
		}
	}
}
