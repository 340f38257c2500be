// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"therapy-chat-api/internal/domain/entity"
)

type SessionRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*entity.Session, error)
	UpdateStatus(ctx context.Context, id string, status entity.SessionStatus, errorMessage string) error
}

// TranscriptRepository 转写结果只读访问（对核心流程只读）
type TranscriptRepository interface {
	GetBySessionID(ctx context.Context, sessionID string) (*entity.Transcript, error)
}
