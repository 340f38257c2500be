package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
)

// SafetyEventRepository 安全审计事件归档，按事件 ID 幂等写入
type SafetyEventRepository struct {
	client *Client
}

func NewSafetyEventRepository(client *Client) *SafetyEventRepository {
	return &SafetyEventRepository{client: client}
}

var _ repository.SafetyEventRepository = (*SafetyEventRepository)(nil)

func (r *SafetyEventRepository) Create(ctx context.Context, event *entity.SafetyEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.SafetyEventRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	// 队列至少投递一次，重复消息直接忽略
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create safety event: %w", err)
	}
	return nil
}

func (r *SafetyEventRepository) CountByTenant(ctx context.Context, tenantID, eventType string, since time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.SafetyEventRepository.CountByTenant")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.SafetyEvent{}).Where("tenant_id = ? AND occurred_at >= ?", tenantID, since)
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	var n int64
	if err := query.Count(&n).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count safety events: %w", err)
	}
	return n, nil
}
