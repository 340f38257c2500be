// Package quota 提供对话入口的限流与配额能力
package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"therapy-chat-api/pkg/logger"
	"therapy-chat-api/pkg/metrics"
)

const keyPrefix = "rate_limit"

// RateLimitStore 外部原子计数存储
type RateLimitStore interface {
	// IncrWithExpiry 原子自增；仅在 key 首次创建时设置 window 过期，返回自增后的值与剩余 TTL
	IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Get key 不存在时返回 0
	Get(ctx context.Context, key string) (int64, error)
	// TTL key 不存在或无过期时返回 <= 0
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error
}

// Usage 当前窗口用量
type Usage struct {
	Count     int64         `json:"count"`
	Limit     int64         `json:"limit"`
	Remaining int64         `json:"remaining"`
	ResetIn   time.Duration `json:"reset_in"`
	ResetAt   time.Time     `json:"reset_at"`
}

// RateLimitExceededError 超过窗口上限；属于预期结果而非系统故障
type RateLimitExceededError struct {
	Scope     string
	Identity  string
	Limit     int64
	Remaining int64
	ResetIn   time.Duration
	ResetAt   time.Time
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: scope=%s max=%d reset_in=%s", e.Scope, e.Limit, e.ResetIn.Round(time.Second))
}

// IsRateLimitExceeded 判断错误链中是否为限流拒绝
func IsRateLimitExceeded(err error) (*RateLimitExceededError, bool) {
	var rle *RateLimitExceededError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// RateLimiter 固定窗口计数限流器：窗口在过期后的首次请求时重新开始
type RateLimiter struct {
	store RateLimitStore
	now   func() time.Time
}

func NewRateLimiter(store RateLimitStore) *RateLimiter {
	return &RateLimiter{store: store, now: time.Now}
}

// Key 计数 key：rate_limit:{scope}:{identity}
func Key(scope, identity string) string {
	return keyPrefix + ":" + strings.TrimSpace(scope) + ":" + strings.TrimSpace(identity)
}

// CheckAndConsume 先自增再判断；超限时计数已提交且不回退
func (l *RateLimiter) CheckAndConsume(ctx context.Context, scope, identity string, max int64, window time.Duration) (*Usage, error) {
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive")
	}
	key := Key(scope, identity)
	count, ttl, err := l.store.IncrWithExpiry(ctx, key, window)
	if err != nil {
		return nil, fmt.Errorf("rate limit store incr: %w", err)
	}
	usage := l.usage(count, max, ttl, window)

	if count > max {
		metrics.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
		logger.Info(ctx, "rate limit exceeded",
			"scope", scope,
			"count", count,
			"limit", max,
			"reset_in", usage.ResetIn.String(),
		)
		return usage, &RateLimitExceededError{
			Scope:     scope,
			Identity:  identity,
			Limit:     max,
			Remaining: 0,
			ResetIn:   usage.ResetIn,
			ResetAt:   usage.ResetAt,
		}
	}
	return usage, nil
}

// Check 只读检查，不消耗配额
func (l *RateLimiter) Check(ctx context.Context, scope, identity string, max int64, window time.Duration) (*Usage, error) {
	usage, err := l.GetUsage(ctx, scope, identity, max, window)
	if err != nil {
		return nil, err
	}
	if usage.Count >= max {
		return usage, &RateLimitExceededError{
			Scope:     scope,
			Identity:  identity,
			Limit:     max,
			Remaining: 0,
			ResetIn:   usage.ResetIn,
			ResetAt:   usage.ResetAt,
		}
	}
	return usage, nil
}

// GetUsage 读取当前用量，不修改计数
func (l *RateLimiter) GetUsage(ctx context.Context, scope, identity string, max int64, window time.Duration) (*Usage, error) {
	key := Key(scope, identity)
	count, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("rate limit store get: %w", err)
	}
	ttl, err := l.store.TTL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("rate limit store ttl: %w", err)
	}
	return l.usage(count, max, ttl, window), nil
}

// Reset 清除计数
func (l *RateLimiter) Reset(ctx context.Context, scope, identity string) error {
	if err := l.store.Delete(ctx, Key(scope, identity)); err != nil {
		return fmt.Errorf("rate limit store delete: %w", err)
	}
	return nil
}

func (l *RateLimiter) usage(count, max int64, ttl, window time.Duration) *Usage {
	if ttl <= 0 {
		ttl = window
	}
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	return &Usage{
		Count:     count,
		Limit:     max,
		Remaining: remaining,
		ResetIn:   ttl,
		ResetAt:   l.now().Add(ttl),
	}
}
