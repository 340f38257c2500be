package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
)

type ConversationRepository struct {
	client *Client
}

func NewConversationRepository(client *Client) *ConversationRepository {
	return &ConversationRepository{client: client}
}

var _ repository.ConversationRepository = (*ConversationRepository)(nil)

// GetOrCreate 并发首轮可能同时插入同一 ID，冲突时回读
func (r *ConversationRepository) GetOrCreate(ctx context.Context, conversation *entity.Conversation) (*entity.Conversation, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationRepository.GetOrCreate")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(conversation).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	var out entity.Conversation
	if err := db.First(&out, "id = ?", conversation.ID).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &out, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, tenantID, id string) (*entity.Conversation, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var conv entity.Conversation
	if err := db.First(&conv, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepository) Touch(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationRepository.Touch")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Conversation{}).Where("id = ?", id).Update("updated_at", time.Now()).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

type ConversationMessageRepository struct {
	client *Client
}

func NewConversationMessageRepository(client *Client) *ConversationMessageRepository {
	return &ConversationMessageRepository{client: client}
}

var _ repository.ConversationMessageRepository = (*ConversationMessageRepository)(nil)

func (r *ConversationMessageRepository) Create(ctx context.Context, message *entity.ConversationMessage) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationMessageRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(message).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create conversation message: %w", err)
	}
	return nil
}

// ListRecent 先倒序取最近 limit 条，再翻转为时间正序
func (r *ConversationMessageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]*entity.ConversationMessage, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationMessageRepository.ListRecent")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var messages []*entity.ConversationMessage
	if err := db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list conversation messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *ConversationMessageRepository) ListByConversation(ctx context.Context, conversationID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ConversationMessage], error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationMessageRepository.ListByConversation")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.ConversationMessage{}).Where("conversation_id = ?", conversationID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count conversation messages: %w", err)
	}

	var messages []*entity.ConversationMessage
	if err := query.Order("created_at ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&messages).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list conversation messages: %w", err)
	}

	return repository.NewPagedResult(messages, total, pagination), nil
}
