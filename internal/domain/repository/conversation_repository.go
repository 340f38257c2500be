// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"therapy-chat-api/internal/domain/entity"
)

type ConversationRepository interface {
	// GetOrCreate 按 ID 获取对话，不存在时以给定租户创建
	GetOrCreate(ctx context.Context, conversation *entity.Conversation) (*entity.Conversation, error)
	GetByID(ctx context.Context, tenantID, id string) (*entity.Conversation, error)
	Touch(ctx context.Context, id string) error
}

type ConversationMessageRepository interface {
	Create(ctx context.Context, message *entity.ConversationMessage) error
	// ListRecent 返回最近 limit 条消息，按时间正序
	ListRecent(ctx context.Context, conversationID string, limit int) ([]*entity.ConversationMessage, error)
	ListByConversation(ctx context.Context, conversationID string, pagination Pagination) (*PagedResult[*entity.ConversationMessage], error)
}
