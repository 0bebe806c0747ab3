package cache

import (
	"container/list"
	"context"
	"reflect"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     any
	expiresAt time.Time
	elem      *list.Element
}

// Memory is an in-process TTL cache.
//
// Expired entries are evicted when they are accessed; there is no background
// sweeper. With WithMaxEntries the cache also keeps a recency list and evicts
// the least recently used entry once the bound is reached.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*entry
	lru        *list.List
	maxEntries int
	now        func() time.Time
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithMaxEntries bounds the number of entries; 0 means unbounded.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		lru:     list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lookup returns the value stored under key.
// A missing or expired key is a miss; an expired entry is removed on the way out.
func (m *Memory) Lookup(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expiresAt) {
		m.remove(e)
		return nil, false
	}
	m.lru.MoveToFront(e.elem)
	return e.value, true
}

// Get implements Store. The stored value is assigned to *dest as is, so slices
// and maps share their backing storage with the cached value.
func (m *Memory) Get(_ context.Context, key string, dest any) bool {
	v, ok := m.Lookup(key)
	if !ok {
		return false
	}

	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	target := rv.Elem()
	if v == nil {
		target.SetZero()
		return true
	}
	val := reflect.ValueOf(v)
	if !val.Type().AssignableTo(target.Type()) {
		return false
	}
	target.Set(val)
	return true
}

// Set stores value under key until ttl elapses, overwriting any existing entry.
// A non-positive ttl removes the key instead.
func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		if ttl <= 0 {
			m.remove(e)
			return
		}
		e.value = value
		e.expiresAt = m.now().Add(ttl)
		m.lru.MoveToFront(e.elem)
		return
	}
	if ttl <= 0 {
		return
	}

	if m.maxEntries > 0 {
		for len(m.entries) >= m.maxEntries {
			oldest := m.lru.Back()
			if oldest == nil {
				break
			}
			m.remove(oldest.Value.(*entry))
		}
	}

	e := &entry{
		key:       key,
		value:     value,
		expiresAt: m.now().Add(ttl),
	}
	e.elem = m.lru.PushFront(e)
	m.entries[key] = e
}

// Delete removes keys regardless of their remaining TTL.
func (m *Memory) Delete(_ context.Context, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		if e, ok := m.entries[key]; ok {
			m.remove(e)
		}
	}
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// remove must be called with m.mu held.
func (m *Memory) remove(e *entry) {
	m.lru.Remove(e.elem)
	delete(m.entries, e.key)
}
