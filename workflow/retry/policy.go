package retry

import (
	"strings"
	"time"

	"github.com/BaSui01/flowengine/types"
)

// Policy 定义重试策略配置
type Policy struct {
	MaxRetries int           // 最大重试次数（总尝试次数 = MaxRetries + 1）
	BaseDelay  time.Duration // 指数退避基数
	MaxDelay   time.Duration // 单次延迟上限
	Jitter     time.Duration // 随机抖动上限 [0, Jitter)
	Timeout    time.Duration // 单次尝试超时（0 表示不限制）

	// Retryable 判断错误是否可重试，为空时使用 DefaultRetryable
	Retryable func(err error) bool
	// OnRetry 每次重试前回调
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 返回外部决策调用的默认重试策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		Jitter:     1 * time.Second,
		Timeout:    10 * time.Second,
		Retryable:  DefaultRetryable,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 60 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = DefaultRetryable
	}
	return p
}

// Backoff 计算第 attempt 次（从 0 开始）失败后的等待时间：
// min(2^attempt * BaseDelay + jitter, MaxDelay)
func (p Policy) Backoff(attempt int, jitter float64) time.Duration {
	if attempt > 30 {
		return p.MaxDelay
	}
	delay := p.BaseDelay<<uint(attempt) + time.Duration(jitter*float64(p.Jitter))
	if delay > p.MaxDelay || delay < 0 {
		return p.MaxDelay
	}
	return delay
}

// 瞬时故障的错误信息特征
var transientMarkers = []string{
	"econnreset",
	"etimedout",
	"enotfound",
	"connection reset",
	"connection refused",
	"rate limit",
	"too many requests",
	"503",
	"502",
	"500",
}

func isNeverRetryable(err error) bool {
	switch types.GetErrorCode(err) {
	case types.ErrTimeout, types.ErrInvalidInput, types.ErrUnauthorized:
		return true
	}
	return false
}

// DefaultRetryable 只重试明确的瞬时故障：
// 标记为 Retryable 的错误、熔断打开，或错误信息包含网络/限流/5xx 特征。
// TIMEOUT、INVALID_INPUT、UNAUTHORIZED 永不重试。
func DefaultRetryable(err error) bool {
	if err == nil || isNeverRetryable(err) {
		return false
	}
	if types.IsRetryable(err) || types.IsCode(err, types.ErrCircuitOpen) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// StepRetryable 用于 RETRY 策略下的步骤重试：除永不重试的错误码外全部重试。
// 步骤内部的外部调用已经由自己的 Wrapper 重试或被熔断拒绝时，不再叠加步骤级重试
func StepRetryable(err error) bool {
	if err == nil || isNeverRetryable(err) {
		return false
	}
	switch types.GetErrorCode(err) {
	case types.ErrMaxRetriesExceeded, types.ErrCircuitOpen:
		return false
	}
	return true
}
