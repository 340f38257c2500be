// Package resilience 为外部供应商调用提供统一的重试与退避
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"therapy-chat-api/pkg/logger"
	"therapy-chat-api/pkg/metrics"
)

// Policy 重试策略
type Policy struct {
	// MaxRetries 最大尝试次数（含首次）
	MaxRetries int
	// BaseDelay 首次退避基准，第 n 次重试等待 BaseDelay*2^n（±25% 抖动）
	BaseDelay time.Duration
	// MaxDelay 单次退避上限，0 表示不限制
	MaxDelay time.Duration
	// AttemptTimeout 单次尝试超时，0 表示仅受调用方 ctx 约束
	AttemptTimeout time.Duration
}

// DefaultPolicy 返回默认策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     5,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 60 * time.Second,
	}
}

const jitterFactor = 0.25

func (p Policy) normalized() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	return p
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: jitterFactor,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(1<<62 - 1)
	}
	b.Reset()
	return b
}

// Do 以 policy 执行 fn：瞬时失败与限流按退避重试，其它错误立即返回。
//
// 返回的错误总是 *ProviderError：首次即遇到不可重试错误时 Retryable=false，
// 重试耗尽或超过调用方截止时间时 Retryable=true 并包装最后一次失败。
func Do[T any](ctx context.Context, policy Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	policy = policy.normalized()
	start := time.Now()

	var (
		attempts int
		lastErr  error
		class    Class
	)

	operation := func() (T, error) {
		attempts++
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}
		res, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return res, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			// 调用方已取消或超时，不再重试
			class = ClassPermanent
			return res, backoff.Permanent(err)
		}

		var hint time.Duration
		class, hint = Classify(err)
		if class == ClassPermanent {
			return res, backoff.Permanent(err)
		}
		if hint > 0 {
			return res, &backoff.RetryAfterError{Duration: hint}
		}
		return res, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy.newBackOff()),
		backoff.WithMaxTries(uint(policy.MaxRetries)),
		backoff.WithNotify(func(_ error, wait time.Duration) {
			metrics.ProviderRetriesTotal.WithLabelValues(op, class.String()).Inc()
			logger.Warn(ctx, "provider call failed, retrying",
				"op", op,
				"attempt", attempts,
				"reason", class.String(),
				"wait", wait.String(),
				"error", errString(lastErr),
			)
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, backoff.WithMaxElapsedTime(time.Until(deadline)))
	}

	res, err := backoff.Retry(ctx, operation, opts...)
	metrics.ProviderCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.ProviderCallsTotal.WithLabelValues(op, "success").Inc()
		return res, nil
	}

	var zero T
	if lastErr == nil {
		lastErr = err
	}
	pe := &ProviderError{Op: op, Attempts: attempts, Err: lastErr}
	switch {
	case ctx.Err() != nil:
		pe.Retryable = true
		pe.Err = fmt.Errorf("%w: %w", ctx.Err(), lastErr)
	case class == ClassPermanent:
		pe.Retryable = false
	default:
		pe.Retryable = true
	}

	status := "exhausted"
	if !pe.Retryable {
		status = "permanent"
	}
	metrics.ProviderCallsTotal.WithLabelValues(op, status).Inc()
	logger.Error(ctx, "provider call failed", pe.Err,
		"op", op,
		"attempts", attempts,
		"retryable", pe.Retryable,
	)
	return zero, pe
}

// AsProviderError 提取错误链中的 ProviderError
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
