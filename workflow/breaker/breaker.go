package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/types"
)

// ErrOpen 熔断器处于打开状态时返回（可通过 errors.Is 判断）
var ErrOpen = errors.New("circuit breaker is open")

// State 熔断器状态
type State int

const (
	// Closed 正常状态，允许请求通过
	Closed State = iota
	// Open 熔断状态，拒绝所有请求
	Open
	// HalfOpen 半开状态，只允许一次试探请求
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText 以字符串形式序列化状态
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config 熔断器配置
type Config struct {
	// FailureThresholdPercentage 滚动窗口内失败率超过该百分比时打开
	FailureThresholdPercentage float64 `json:"failure_threshold_percentage" yaml:"failure_threshold_percentage"`
	// MinimumRequests 滚动窗口内至少有这么多请求才评估失败率
	MinimumRequests int `json:"minimum_requests" yaml:"minimum_requests"`
	// ResetTimeout 打开后等待多久进入半开
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout"`
	// RollingWindow 统计窗口长度
	RollingWindow time.Duration `json:"rolling_window" yaml:"rolling_window"`
	// Buckets 窗口被切分成的桶数
	Buckets int `json:"buckets" yaml:"buckets"`
}

// DefaultConfig 默认熔断器配置
func DefaultConfig() Config {
	return Config{
		FailureThresholdPercentage: 50,
		MinimumRequests:            5,
		ResetTimeout:               30 * time.Second,
		RollingWindow:              60 * time.Second,
		Buckets:                    10,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.FailureThresholdPercentage <= 0 {
		c.FailureThresholdPercentage = d.FailureThresholdPercentage
	}
	if c.MinimumRequests <= 0 {
		c.MinimumRequests = 1
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.RollingWindow <= 0 {
		c.RollingWindow = d.RollingWindow
	}
	if c.Buckets <= 0 {
		c.Buckets = d.Buckets
	}
	return c
}

// Event 熔断器状态变更事件
type Event struct {
	Name      string    `json:"name"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason"`
	Failures  int       `json:"failures"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHandler 事件处理器接口
type EventHandler interface {
	OnStateChange(event Event)
}

// EventHandlerFunc 函数适配器
type EventHandlerFunc func(event Event)

// OnStateChange 调用 f
func (f EventHandlerFunc) OnStateChange(event Event) { f(event) }

// Snapshot 熔断器统计快照
type Snapshot struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Failures  int       `json:"failures"`
	Successes int       `json:"successes"`
	Total     int       `json:"total"`
	Fires     int64     `json:"fires"`
	Rejected  int64     `json:"rejected"`
	OpenedAt  time.Time `json:"openedAt,omitzero"`
}

// IsOpen / IsHalfOpen / IsClosed 便捷判断
func (s Snapshot) IsOpen() bool     { return s.State == Open }
func (s Snapshot) IsHalfOpen() bool { return s.State == HalfOpen }
func (s Snapshot) IsClosed() bool   { return s.State == Closed }

type bucket struct {
	start     time.Time
	successes int
	failures  int
}

// Breaker 基于滚动桶失败率的熔断器
type Breaker struct {
	name          string
	config        Config
	state         State
	buckets       []bucket
	width         time.Duration
	openedAt      time.Time
	trialInFlight bool
	generation    uint64
	fires         int64
	rejected      int64
	handlers      []EventHandler
	isClientError func(error) bool
	now           func() time.Time
	logger        *zap.Logger
	mu            sync.Mutex
}

// New 创建熔断器
func New(name string, config Config, logger *zap.Logger, handlers ...EventHandler) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.normalized()
	return &Breaker{
		name:          name,
		config:        config,
		state:         Closed,
		buckets:       make([]bucket, config.Buckets),
		width:         config.RollingWindow / time.Duration(config.Buckets),
		handlers:      handlers,
		isClientError: IsClientError,
		now:           time.Now,
		logger:        logger.With(zap.String("component", "circuit_breaker"), zap.String("breaker", name)),
	}
}

// Name 返回依赖名
func (b *Breaker) Name() string { return b.name }

// IsClientError 调用方错误不计入失败率
func IsClientError(err error) bool {
	switch types.GetErrorCode(err) {
	case types.ErrInvalidInput, types.ErrUnauthorized:
		return true
	}
	return false
}

// Ticket 标识一次放行所属的状态代次，Record 只接受当前代次的结果
type Ticket uint64

// Allow 检查是否允许请求通过；允许时调用方必须随后以返回的 Ticket 调用 Record
func (b *Breaker) Allow() (Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return b.admit(), nil

	case Open:
		if b.now().Sub(b.openedAt) >= b.config.ResetTimeout {
			b.transitionTo(HalfOpen, "reset timeout elapsed")
			b.trialInFlight = true
			return b.admit(), nil
		}
		return 0, b.reject()

	case HalfOpen:
		if !b.trialInFlight {
			b.trialInFlight = true
			return b.admit(), nil
		}
		return 0, b.reject()
	}
	return 0, b.reject()
}

func (b *Breaker) admit() Ticket {
	b.fires++
	return Ticket(b.generation)
}

func (b *Breaker) reject() error {
	b.rejected++
	return types.NewError(types.ErrCircuitOpen, fmt.Sprintf("circuit breaker %s is %s", b.name, b.state)).
		WithRetryable(true).
		WithCause(ErrOpen)
}

// Record 记录一次调用结果。t 来自更早状态代（状态变更前放行）的结果被忽略
func (b *Breaker) Record(t Ticket, err error) {
	failed := err != nil && !b.isClientError(err)

	b.mu.Lock()
	defer b.mu.Unlock()

	if uint64(t) != b.generation {
		return
	}

	switch b.state {
	case Closed:
		bk := b.current()
		if failed {
			bk.failures++
		} else {
			bk.successes++
		}
		if failed {
			b.evaluate()
		}

	case HalfOpen:
		b.trialInFlight = false
		if failed {
			b.openedAt = b.now()
			b.transitionTo(Open, "trial request failed")
			return
		}
		b.resetBuckets()
		b.transitionTo(Closed, "trial request succeeded")
	}
}

// Execute 通过熔断器执行 fn
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	t, err := b.Allow()
	if err != nil {
		return nil, err
	}
	res, err := fn(ctx)
	b.Record(t, err)
	return res, err
}

// State 获取当前状态（打开且超时已过时仍报告 Open，直到下一次 Allow）
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot 获取统计快照
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	successes, failures := b.totals()
	return Snapshot{
		Name:      b.name,
		State:     b.state,
		Failures:  failures,
		Successes: successes,
		Total:     successes + failures,
		Fires:     b.fires,
		Rejected:  b.rejected,
		OpenedAt:  b.openedAt,
	}
}

// Reset 重置熔断器
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetBuckets()
	b.trialInFlight = false
	if b.state != Closed {
		b.transitionTo(Closed, "manual reset")
	} else {
		b.generation++
	}
}

// evaluate 检查失败率（必须在锁内调用）
func (b *Breaker) evaluate() {
	successes, failures := b.totals()
	total := successes + failures
	if total < b.config.MinimumRequests {
		return
	}
	pct := float64(failures) * 100 / float64(total)
	if pct > b.config.FailureThresholdPercentage {
		b.openedAt = b.now()
		b.transitionTo(Open, fmt.Sprintf("failure rate %.1f%% over %d requests", pct, total))
	}
}

// current 返回当前时间所在的桶（必须在锁内调用）
func (b *Breaker) current() *bucket {
	now := b.now()
	start := now.Truncate(b.width)
	idx := int((start.UnixNano() / int64(b.width)) % int64(len(b.buckets)))
	bk := &b.buckets[idx]
	if !bk.start.Equal(start) {
		*bk = bucket{start: start}
	}
	return bk
}

// totals 汇总窗口内的桶（必须在锁内调用）
func (b *Breaker) totals() (successes, failures int) {
	cutoff := b.now().Add(-b.config.RollingWindow)
	for _, bk := range b.buckets {
		if bk.start.IsZero() || !bk.start.After(cutoff) {
			continue
		}
		successes += bk.successes
		failures += bk.failures
	}
	return successes, failures
}

func (b *Breaker) resetBuckets() {
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
}

// transitionTo 状态转换（必须在锁内调用）
func (b *Breaker) transitionTo(newState State, reason string) {
	oldState := b.state
	b.state = newState
	b.generation++
	_, failures := b.totals()

	switch newState {
	case Open:
		b.logger.Warn("circuit breaker opened", zap.String("reason", reason), zap.Int("failures", failures))
	case HalfOpen:
		b.logger.Info("circuit breaker half-open", zap.String("reason", reason))
	case Closed:
		b.logger.Info("circuit breaker closed", zap.String("reason", reason))
	}

	event := Event{
		Name:      b.name,
		From:      oldState,
		To:        newState,
		Reason:    reason,
		Failures:  failures,
		Timestamp: b.now(),
	}
	for _, h := range b.handlers {
		// 异步发送避免死锁
		go h.OnStateChange(event)
	}
}
