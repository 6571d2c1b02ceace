package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultDecisionTTL is the default lifetime of a cached decision.
const DefaultDecisionTTL = 5 * time.Minute

// RemoteStore is an optional second-level store shared between processes.
type RemoteStore interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// DecisionCache caches results of external decision services.
type DecisionCache struct {
	local  *Table[any]
	remote RemoteStore
	logger *zap.Logger
}

// NewDecisionCache creates a decision cache with an in-memory table.
// remote may be nil.
func NewDecisionCache(ttl time.Duration, remote RemoteStore, logger *zap.Logger) *DecisionCache {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionCache{
		local:  NewTable[any](ttl),
		remote: remote,
		logger: logger.With(zap.String("component", "decision_cache")),
	}
}

// Table exposes the in-memory table.
func (c *DecisionCache) Table() *Table[any] {
	return c.local
}

// Get looks the key up locally, then remotely. Remote hits are promoted.
func (c *DecisionCache) Get(ctx context.Context, key string) (any, bool) {
	if v, ok := c.local.Get(key); ok {
		return v, true
	}
	if c.remote == nil {
		return nil, false
	}

	var v any
	if err := c.remote.GetJSON(ctx, key, &v); err != nil {
		c.logger.Debug("remote decision cache miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	c.local.Set(key, v, 0)
	return v, true
}

// Set stores value locally and remotely. ttl <= 0 uses the default.
func (c *DecisionCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.local.DefaultTTL()
	}
	c.local.Set(key, value, ttl)
	if c.remote == nil {
		return
	}
	if err := c.remote.SetJSON(ctx, key, value, ttl); err != nil {
		c.logger.Warn("remote decision cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes key from both levels.
func (c *DecisionCache) Delete(ctx context.Context, key string) {
	c.local.Delete(key)
	if c.remote == nil {
		return
	}
	if err := c.remote.Delete(ctx, key); err != nil {
		c.logger.Warn("remote decision cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear empties the local table. Remote entries expire on their own TTL.
func (c *DecisionCache) Clear() {
	c.local.Clear()
}

// Sweep drops expired local entries.
func (c *DecisionCache) Sweep() int {
	return c.local.Sweep()
}

// Len returns the number of local entries.
func (c *DecisionCache) Len() int {
	return c.local.Len()
}
