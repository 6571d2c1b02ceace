package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTable_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	table := NewTable[string](time.Hour).WithClock(clock.Now)

	table.Set("k", "v", 100*time.Millisecond)

	clock.Advance(50 * time.Millisecond)
	v, ok := table.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(101 * time.Millisecond)
	_, ok = table.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len(), "expired entry is removed on read")
}

func TestTable_DefaultTTL(t *testing.T) {
	clock := newFakeClock()
	table := NewTable[int](time.Hour).WithClock(clock.Now)

	table.Set("k", 1, 0)
	clock.Advance(59 * time.Minute)
	_, ok := table.Get("k")
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = table.Get("k")
	assert.False(t, ok)
}

func TestTable_Sweep(t *testing.T) {
	clock := newFakeClock()
	table := NewTable[int](time.Minute).WithClock(clock.Now)

	table.Set("short", 1, time.Second)
	table.Set("long", 2, time.Hour)
	clock.Advance(2 * time.Second)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 1, table.Sweep())
	assert.Equal(t, 1, table.Len())

	table.Delete("long")
	assert.Equal(t, 0, table.Len())

	table.Set("a", 1, 0)
	table.Clear()
	assert.Equal(t, 0, table.Len())
}

func TestGenerateKey_OrderIndependent(t *testing.T) {
	a := GenerateKey("ai-payment", "assessRisk", map[string]any{"tenantId": 1, "invoiceId": 2})
	b := GenerateKey("ai-payment", "assessRisk", map[string]any{"invoiceId": 2, "tenantId": 1})
	assert.Equal(t, a, b)
	assert.Contains(t, a, "decision:ai-payment:assessRisk:")

	c := GenerateKey("ai-payment", "assessRisk", map[string]any{"tenantId": 1, "invoiceId": 3})
	assert.NotEqual(t, a, c)

	d := GenerateKey("ai-payment", "otherMethod", map[string]any{"tenantId": 1, "invoiceId": 2})
	assert.NotEqual(t, a, d)
}

func TestGenerateKey_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 1, 8, rapid.ID[string]).Draw(rt, "keys")

		forward := make(map[string]any, len(keys))
		for i, k := range keys {
			forward[k] = i
		}
		reverse := make(map[string]any, len(keys))
		for i := len(keys) - 1; i >= 0; i-- {
			reverse[keys[i]] = i
		}

		if GenerateKey("svc", "m", forward) != GenerateKey("svc", "m", reverse) {
			rt.Fatalf("keys differ for %v", keys)
		}
	})
}

type mapRemote struct {
	mu   sync.Mutex
	data map[string]any
	sets int
}

func (m *mapRemote) GetJSON(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return assert.AnError
	}
	*(dest.(*any)) = v
	return nil
}

func (m *mapRemote) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *mapRemote) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestDecisionCache_RemotePromotion(t *testing.T) {
	ctx := context.Background()
	remote := &mapRemote{data: map[string]any{"decision:x": "remote-value"}}
	c := NewDecisionCache(0, remote, nil)

	v, ok := c.Get(ctx, "decision:x")
	require.True(t, ok)
	assert.Equal(t, "remote-value", v)
	assert.Equal(t, 1, c.Len(), "remote hit is promoted locally")

	c.Set(ctx, "decision:y", map[string]any{"priority": "HIGH"}, 0)
	assert.Equal(t, 1, remote.sets)

	c.Delete(ctx, "decision:y")
	_, ok = c.Get(ctx, "decision:y")
	assert.False(t, ok)
}

func TestDecisionCache_LocalOnly(t *testing.T) {
	ctx := context.Background()
	c := NewDecisionCache(time.Minute, nil, nil)

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k", 1, 0)
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, time.Minute, c.Table().DefaultTTL())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestJanitor_SweepOnceAndRun(t *testing.T) {
	clock := newFakeClock()
	table := NewTable[int](time.Second).WithClock(clock.Now)
	table.Set("a", 1, 0)
	clock.Advance(2 * time.Second)

	j := NewJanitor(10*time.Millisecond, nil).Add("defs", table)
	removed := j.SweepOnce()
	assert.Equal(t, 1, removed["defs"])

	var mu sync.Mutex
	calls := 0
	j.Add("counter", SweeperFunc(func() int {
		mu.Lock()
		calls++
		mu.Unlock()
		return 0
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
