package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript 原子地计数并在窗口首次出现时设置过期时间，返回 {count, pttl}
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisFixedWindow is a fixed-window limiter shared between processes.
//
// Each key holds a counter that expires with its window. One script call per
// check; requests past the limit still count toward the window but are denied.
type RedisFixedWindow struct {
	client redis.Cmdable
	prefix string
}

// NewRedisFixedWindow creates a Redis-backed limiter. prefix namespaces keys.
func NewRedisFixedWindow(client redis.Cmdable, prefix string) *RedisFixedWindow {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisFixedWindow{client: client, prefix: prefix}
}

// Check consumes one point from key's current window.
func (l *RedisFixedWindow) Check(ctx context.Context, key string, points int, window time.Duration) (Result, error) {
	points, window = normalize(points, window)
	k := l.prefix + ":" + key

	vals, err := fixedWindowScript.Run(ctx, l.client, []string{k}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit check: unexpected reply %v", vals)
	}
	count := int(vals[0])
	resetAt := time.Now().Add(time.Duration(vals[1]) * time.Millisecond)

	if count > points {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Result{Allowed: true, Remaining: points - count, ResetAt: resetAt}, nil
}

// Reset forgets key.
func (l *RedisFixedWindow) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+":"+key).Err()
}
