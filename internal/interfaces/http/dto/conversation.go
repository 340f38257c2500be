package dto

import (
	"encoding/json"
	"time"

	"therapy-chat-api/internal/domain/entity"
)

// ConversationResponse 对话基本信息
type ConversationResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func ToConversationResponse(c *entity.Conversation) *ConversationResponse {
	if c == nil {
		return nil
	}
	return &ConversationResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// MessageResponse 对话消息，助手消息的 metadata 中带引用来源
type MessageResponse struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func ToMessageResponse(m *entity.ConversationMessage) *MessageResponse {
	if m == nil {
		return nil
	}
	return &MessageResponse{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ConversationHistoryResponse 对话及其分页消息
type ConversationHistoryResponse struct {
	Conversation *ConversationResponse `json:"conversation"`
	Messages     []*MessageResponse    `json:"messages"`
}

func ToConversationHistoryResponse(c *entity.Conversation, msgs []*entity.ConversationMessage) *ConversationHistoryResponse {
	out := &ConversationHistoryResponse{
		Conversation: ToConversationResponse(c),
		Messages:     make([]*MessageResponse, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, ToMessageResponse(m))
	}
	return out
}
