// Package entity 定义领域实体
package entity

import "time"

// SessionStatus 咨询会话的处理状态
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusReady      SessionStatus = "ready"
	SessionStatusFailed     SessionStatus = "failed"
)

// Session 一次咨询会话，归属于租户（患者）
type Session struct {
	ID           string        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID     string        `json:"tenant_id" gorm:"type:varchar(64);index;not null"`
	Title        string        `json:"title,omitempty" gorm:"type:varchar(255)"`
	SessionDate  *time.Time    `json:"session_date,omitempty"`
	Status       SessionStatus `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	ErrorMessage string        `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Session) TableName() string {
	return "sessions"
}
