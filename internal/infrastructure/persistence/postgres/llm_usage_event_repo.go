package postgres

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
)

var _ repository.LLMUsageEventRepository = (*LLMUsageEventRepository)(nil)

// LLMUsageEventRepository llm_usage_events 表
type LLMUsageEventRepository struct {
	client *Client
}

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", event.TenantID),
		attribute.Int("tokens", event.TotalTokens()),
	)

	if err := getDB(ctx, r.client.db).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert llm usage event: %w", err)
	}
	return nil
}

type tokenSum struct {
	Total int64
}

func (r *LLMUsageEventRepository) SumTokens(ctx context.Context, tenantID string, from, to time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.SumTokens")
	defer span.End()

	var sum tokenSum
	err := getDB(ctx, r.client.db).
		Model(&entity.LLMUsageEvent{}).
		Select("COALESCE(SUM(tokens_prompt + tokens_completion), 0) AS total").
		Where("tenant_id = ?", tenantID).
		Where("created_at >= ? AND created_at < ?", from, to).
		Scan(&sum).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("sum llm tokens for tenant %s: %w", tenantID, err)
	}
	return sum.Total, nil
}
