// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"
)

// Conversation 患者与助手之间的一段对话
type Conversation struct {
	ID        string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(64);index;not null"`
	UserID    string    `json:"user_id,omitempty" gorm:"type:varchar(64)"`
	Title     string    `json:"title,omitempty" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func NewConversation(id, tenantID, userID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        id,
		TenantID:  tenantID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ConversationMessage 对话中的一条消息；助手消息的 Metadata 保存引用来源
type ConversationMessage struct {
	ID             string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationID string          `json:"conversation_id" gorm:"type:varchar(64);index;not null"`
	Role           Role            `json:"role" gorm:"type:varchar(16);not null"`
	Content        string          `json:"content" gorm:"type:text;not null"`
	Metadata       json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

func NewConversationMessage(conversationID string, role Role, content string, metadata json.RawMessage) *ConversationMessage {
	return &ConversationMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		CreatedAt:      time.Now(),
	}
}
