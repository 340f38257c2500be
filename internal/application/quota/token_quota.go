package quota

import (
	"context"
	"fmt"
	"time"

	"therapy-chat-api/internal/domain/repository"
)

// TokenQuotaExceededError 表示租户 Token 日配额已耗尽
type TokenQuotaExceededError struct {
	TenantID string
	Max      int64
	Used     int64
}

func (e TokenQuotaExceededError) Error() string {
	return fmt.Sprintf("token quota exceeded: tenant=%s used=%d max=%d", e.TenantID, e.Used, e.Max)
}

// TokenQuotaChecker 基于 LLM 用量流水检查租户当日 Token 配额
type TokenQuotaChecker struct {
	usageRepo repository.LLMUsageEventRepository
	maxPerDay int64
	now       func() time.Time
}

// NewTokenQuotaChecker maxPerDay <= 0 表示不限制
func NewTokenQuotaChecker(usageRepo repository.LLMUsageEventRepository, maxPerDay int64) *TokenQuotaChecker {
	return &TokenQuotaChecker{
		usageRepo: usageRepo,
		maxPerDay: maxPerDay,
		now:       time.Now,
	}
}

// DailyUsage 返回租户当日（UTC）已用 token 与上限
func (c *TokenQuotaChecker) DailyUsage(ctx context.Context, tenantID string) (used int64, max int64, err error) {
	if c == nil || c.usageRepo == nil {
		return 0, 0, nil
	}
	now := c.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	used, err = c.usageRepo.SumTokens(ctx, tenantID, start, start.Add(24*time.Hour))
	if err != nil {
		return 0, c.maxPerDay, err
	}
	return used, c.maxPerDay, nil
}

// CheckDailyTokens 检查租户是否还有当日 Token 配额。
// 返回：used/max（便于客户端展示），以及是否超过配额的 error。
func (c *TokenQuotaChecker) CheckDailyTokens(ctx context.Context, tenantID string) (used int64, max int64, err error) {
	if c == nil || c.maxPerDay <= 0 {
		return 0, 0, nil
	}
	used, max, err = c.DailyUsage(ctx, tenantID)
	if err != nil {
		return 0, max, err
	}
	if used >= max {
		return used, max, TokenQuotaExceededError{TenantID: tenantID, Max: max, Used: used}
	}
	return used, max, nil
}
