package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Default limits applied when a caller passes zero values.
const (
	DefaultPoints = 10
	DefaultWindow = 60 * time.Second
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Limiter checks and consumes a point for key.
type Limiter interface {
	Check(ctx context.Context, key string, points int, window time.Duration) (Result, error)
}

// Stats summarises the limiter state.
type Stats struct {
	ActiveLimits int `json:"activeLimits"`
	TotalKeys    int `json:"totalKeys"`
}

type entry struct {
	count   int
	resetAt time.Time
}

// FixedWindow is an in-memory fixed-window limiter.
type FixedWindow struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewFixedWindow creates an in-memory limiter.
func NewFixedWindow() *FixedWindow {
	return &FixedWindow{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *FixedWindow) WithClock(now func() time.Time) *FixedWindow {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	return l
}

// Check consumes one point from key's current window.
//
// A request in a fresh window is always allowed. Once the window holds
// points requests, further requests are denied without being counted, so the
// count never exceeds points.
func (l *FixedWindow) Check(_ context.Context, key string, points int, window time.Duration) (Result, error) {
	points, window = normalize(points, window)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(window)}
		l.entries[key] = e
		return Result{Allowed: true, Remaining: points - 1, ResetAt: e.resetAt}, nil
	}

	if e.count >= points {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.resetAt}, nil
	}

	e.count++
	return Result{Allowed: true, Remaining: max(0, points-e.count), ResetAt: e.resetAt}, nil
}

// Reset forgets key.
func (l *FixedWindow) Reset(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Sweep removes entries whose window has ended and returns how many were removed.
func (l *FixedWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Stats reports the number of live windows and tracked keys.
func (l *FixedWindow) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	active := 0
	for _, e := range l.entries {
		if now.Before(e.resetAt) {
			active++
		}
	}
	return Stats{ActiveLimits: active, TotalKeys: len(l.entries)}
}

// UserKey builds the limiter key for an actor, optionally scoped to a workflow.
func UserKey(actorID, workflowID string) string {
	if workflowID == "" {
		return fmt.Sprintf("workflow:%s", actorID)
	}
	return fmt.Sprintf("workflow:%s:%s", actorID, workflowID)
}

// TenantKey builds the limiter key for a tenant, optionally scoped to a workflow.
func TenantKey(tenantID, workflowID string) string {
	if workflowID == "" {
		return fmt.Sprintf("workflow:tenant:%s", tenantID)
	}
	return fmt.Sprintf("workflow:tenant:%s:%s", tenantID, workflowID)
}

func normalize(points int, window time.Duration) (int, time.Duration) {
	if points <= 0 {
		points = DefaultPoints
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return points, window
}
