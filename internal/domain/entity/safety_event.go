// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"
)

// SafetyEvent 安全审计事件归档
type SafetyEvent struct {
	ID             string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventType      string          `json:"event_type" gorm:"type:varchar(64);index;not null"`
	TenantID       string          `json:"tenant_id" gorm:"type:varchar(64);index;not null"`
	UserID         string          `json:"user_id,omitempty" gorm:"type:varchar(64)"`
	ConversationID string          `json:"conversation_id,omitempty" gorm:"type:varchar(64)"`
	Direction      string          `json:"direction,omitempty" gorm:"type:varchar(16)"`
	RiskLevel      string          `json:"risk_level,omitempty" gorm:"type:varchar(16)"`
	Action         string          `json:"action,omitempty" gorm:"type:varchar(16)"`
	Details        json.RawMessage `json:"details,omitempty" gorm:"type:jsonb"`
	OccurredAt     time.Time       `json:"occurred_at" gorm:"not null"`
	CreatedAt      time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (SafetyEvent) TableName() string {
	return "safety_events"
}
