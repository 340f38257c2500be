package repository

import (
	"context"
	"time"

	"therapy-chat-api/internal/domain/entity"
)

// LLMUsageEventRepository token 用量流水存储
type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
	// SumTokens 统计 [from, to) 区间内租户的 prompt+completion token 总数
	SumTokens(ctx context.Context, tenantID string, from, to time.Time) (int64, error)
}
