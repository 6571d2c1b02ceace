package cache

import (
	"sync"
	"time"
)

// Entry is a cached value with its insertion time and time to live.
type Entry[T any] struct {
	Data       T
	InsertedAt time.Time
	TTL        time.Duration
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry[T]) Expired(now time.Time) bool {
	return now.Sub(e.InsertedAt) > e.TTL
}

// Table is a concurrency-safe TTL map. Expired entries are dropped lazily on
// read and in bulk by Sweep.
type Table[T any] struct {
	mu         sync.Mutex
	entries    map[string]Entry[T]
	defaultTTL time.Duration
	now        func() time.Time
}

// NewTable creates a table whose Set uses defaultTTL when ttl <= 0.
func NewTable[T any](defaultTTL time.Duration) *Table[T] {
	return &Table[T]{
		entries:    make(map[string]Entry[T]),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (t *Table[T]) WithClock(now func() time.Time) *Table[T] {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
	return t
}

// DefaultTTL returns the TTL applied when Set is called with ttl <= 0.
func (t *Table[T]) DefaultTTL() time.Duration {
	return t.defaultTTL
}

// Get returns the value for key if present and not expired.
func (t *Table[T]) Get(key string) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	e, ok := t.entries[key]
	if !ok {
		return zero, false
	}
	if e.Expired(t.now()) {
		delete(t.entries, key)
		return zero, false
	}
	return e.Data, true
}

// Set stores value under key.
func (t *Table[T]) Set(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = t.defaultTTL
	}
	t.mu.Lock()
	t.entries[key] = Entry[T]{Data: value, InsertedAt: t.now(), TTL: ttl}
	t.mu.Unlock()
}

// Delete removes key.
func (t *Table[T]) Delete(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Clear removes every entry.
func (t *Table[T]) Clear() {
	t.mu.Lock()
	t.entries = make(map[string]Entry[T])
	t.mu.Unlock()
}

// Sweep removes every expired entry and returns how many were removed.
func (t *Table[T]) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for k, e := range t.entries {
		if e.Expired(now) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included until swept.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
