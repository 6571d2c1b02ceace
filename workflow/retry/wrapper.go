package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow/breaker"
	"github.com/BaSui01/flowengine/workflow/cache"
)

// Func 被包装的调用
type Func func(ctx context.Context) (any, error)

// CallSpec 描述一次被包装的调用
type CallSpec struct {
	Service   string         // 依赖名，同时作为熔断器名；为空则不经过熔断器
	Method    string         // 方法名，参与缓存键
	Params    map[string]any // 参数，参与缓存键
	CacheTTL  time.Duration  // 成功结果的缓存时间，0 使用缓存默认值
	SkipCache bool           // 不读也不写缓存
}

func (s CallSpec) label() string {
	switch {
	case s.Service == "":
		return s.Method
	case s.Method == "":
		return s.Service
	default:
		return s.Service + "." + s.Method
	}
}

// Wrapper 组合了单次超时、决策缓存、熔断器与指数退避重试
type Wrapper struct {
	policy   Policy
	breakers *breaker.Registry
	cache    *cache.DecisionCache
	logger   *zap.Logger
	jitter   func() float64
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewWrapper 创建重试包装器，breakers 与 decisions 均可为 nil
func NewWrapper(policy Policy, breakers *breaker.Registry, decisions *cache.DecisionCache, logger *zap.Logger) *Wrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wrapper{
		policy:   policy.normalized(),
		breakers: breakers,
		cache:    decisions,
		logger:   logger.With(zap.String("component", "retry")),
		jitter:   rand.Float64,
		sleep:    sleepContext,
	}
}

// Policy 返回当前策略
func (w *Wrapper) Policy() Policy {
	return w.policy
}

// WithPolicy 返回共享熔断器与缓存、但使用新策略的副本
func (w *Wrapper) WithPolicy(policy Policy) *Wrapper {
	cp := *w
	cp.policy = policy.normalized()
	return &cp
}

// Call 执行 fn，失败时按策略重试
func (w *Wrapper) Call(ctx context.Context, spec CallSpec, fn Func) (any, error) {
	v, _, err := w.CallCounted(ctx, spec, fn)
	return v, err
}

// CallCounted 与 Call 相同，额外返回实际尝试次数（缓存命中为 0）
func (w *Wrapper) CallCounted(ctx context.Context, spec CallSpec, fn Func) (any, int, error) {
	useCache := w.cache != nil && !spec.SkipCache && spec.Service != ""
	var key string
	if useCache {
		key = cache.GenerateKey(spec.Service, spec.Method, spec.Params)
		if v, ok := w.cache.Get(ctx, key); ok {
			w.logger.Debug("决策缓存命中", zap.String("call", spec.label()), zap.String("key", key))
			return v, 0, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= w.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := w.policy.Backoff(attempt-1, w.jitter())

			w.logger.Debug("重试中",
				zap.String("call", spec.label()),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", w.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if w.policy.OnRetry != nil {
				w.policy.OnRetry(attempt, lastErr, delay)
			}

			if err := w.sleep(ctx, delay); err != nil {
				return nil, attempt, fmt.Errorf("重试被取消: %w", err)
			}
		}

		result, err := w.attempt(ctx, spec, fn)
		if err == nil {
			if attempt > 0 {
				w.logger.Info("重试成功", zap.String("call", spec.label()), zap.Int("attempt", attempt))
			}
			if useCache {
				w.cache.Set(ctx, key, result, spec.CacheTTL)
			}
			return result, attempt + 1, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, attempt + 1, lastErr
		}
		if !w.policy.Retryable(lastErr) {
			w.logger.Debug("错误不可重试", zap.String("call", spec.label()), zap.Error(lastErr))
			return nil, attempt + 1, lastErr
		}
	}

	attempts := w.policy.MaxRetries + 1
	w.logger.Warn("重试次数耗尽",
		zap.String("call", spec.label()),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)

	return nil, attempts, types.NewError(types.ErrMaxRetriesExceeded,
		fmt.Sprintf("%s failed after %d attempts", spec.label(), attempts)).
		WithCause(lastErr).
		WithDetail("attempts", attempts)
}

// attempt 执行单次尝试：超时控制在熔断器内部，超时计为失败
func (w *Wrapper) attempt(ctx context.Context, spec CallSpec, fn Func) (any, error) {
	call := func(ctx context.Context) (any, error) {
		return w.withTimeout(ctx, spec, fn)
	}
	if w.breakers == nil || spec.Service == "" {
		return call(ctx)
	}
	return w.breakers.Get(spec.Service).Execute(ctx, call)
}

type outcome struct {
	value any
	err   error
}

func (w *Wrapper) withTimeout(ctx context.Context, spec CallSpec, fn Func) (any, error) {
	if w.policy.Timeout <= 0 {
		return fn(ctx)
	}

	actx, cancel := context.WithTimeout(ctx, w.policy.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		v, err := fn(actx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, timeoutError(spec, w.policy.Timeout, o.err)
		}
		return o.value, o.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, timeoutError(spec, w.policy.Timeout, actx.Err())
	}
}

func timeoutError(spec CallSpec, d time.Duration, cause error) error {
	return types.NewError(types.ErrTimeout, fmt.Sprintf("%s timed out after %s", spec.label(), d)).
		WithCause(cause)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do 是 Call 的泛型版本；缓存中类型不符的值视为未命中
func Do[T any](ctx context.Context, w *Wrapper, spec CallSpec, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if w.cache != nil && !spec.SkipCache && spec.Service != "" {
		key := cache.GenerateKey(spec.Service, spec.Method, spec.Params)
		if v, ok := w.cache.Get(ctx, key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
			w.cache.Delete(ctx, key)
		}
	}

	v, err := w.Call(ctx, spec, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected result type %T", v)
	}
	return typed, nil
}
