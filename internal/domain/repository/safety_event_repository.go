// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"therapy-chat-api/internal/domain/entity"
)

type SafetyEventRepository interface {
	Create(ctx context.Context, event *entity.SafetyEvent) error
	CountByTenant(ctx context.Context, tenantID, eventType string, since time.Time) (int64, error)
}
