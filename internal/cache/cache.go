// Package cache provides small TTL-bounded value caches. Components that
// poll slow external facts (subsystem presence, bridge reachability,
// platform version) hold one Entry per fact instead of ad hoc nullable
// fields, so invalidation rules stay uniform and testable.
package cache

import (
	"sync"
	"time"
)

// Clock returns the current time; injectable for tests.
type Clock func() time.Time

// Entry caches a single value with an absolute expiry instant.
type Entry[T any] struct {
	mu     sync.Mutex
	value  T
	expiry time.Time
	ttl    time.Duration
	now    Clock
}

// NewEntry creates an empty entry with the given TTL.
func NewEntry[T any](ttl time.Duration) *Entry[T] {
	return &Entry[T]{ttl: ttl, now: time.Now}
}

// WithClock overrides the entry's clock. Test hook.
func (e *Entry[T]) WithClock(now Clock) *Entry[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
	return e
}

// Get returns the cached value when fresh; otherwise it calls fill,
// caches a successful result, and returns it. A fill error is returned
// without caching so the next call retries.
func (e *Entry[T]) Get(fill func() (T, error)) (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.now().Before(e.expiry) {
		return e.value, nil
	}

	value, err := fill()
	if err != nil {
		var zero T
		return zero, err
	}
	e.value = value
	e.expiry = e.now().Add(e.ttl)
	return value, nil
}

// Peek returns the cached value and whether it is still fresh, without
// filling.
func (e *Entry[T]) Peek() (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.now().Before(e.expiry) {
		return e.value, true
	}
	var zero T
	return zero, false
}

// Set stores a value and restarts its TTL window.
func (e *Entry[T]) Set(value T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = value
	e.expiry = e.now().Add(e.ttl)
}

// Invalidate forces the next Get to refill.
func (e *Entry[T]) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expiry = time.Time{}
}

// Map is a keyed cache without expiry of its own; staleness is decided
// by the caller-provided validity check on read. Used for per-file
// metadata keyed by absolute path, where freshness depends on the file's
// size and mtime rather than wall-clock age.
type Map[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// NewMap creates an empty keyed cache.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{entries: make(map[K]V)}
}

// Get returns the entry for key and whether one exists.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

// Put stores an entry.
func (m *Map[K, V]) Put(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
}

// Delete removes an entry.
func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
