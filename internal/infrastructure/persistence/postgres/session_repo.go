package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
)

type SessionRepository struct {
	client *Client
}

func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{client: client}
}

var _ repository.SessionRepository = (*SessionRepository)(nil)

// GetByID 会话不存在或不属于该租户时返回 nil
func (r *SessionRepository) GetByID(ctx context.Context, tenantID, id string) (*entity.Session, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var session entity.Session
	if err := db.First(&session, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status entity.SessionStatus, errorMessage string) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.UpdateStatus")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Model(&entity.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
		}).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

type TranscriptRepository struct {
	client *Client
}

func NewTranscriptRepository(client *Client) *TranscriptRepository {
	return &TranscriptRepository{client: client}
}

var _ repository.TranscriptRepository = (*TranscriptRepository)(nil)

func (r *TranscriptRepository) GetBySessionID(ctx context.Context, sessionID string) (*entity.Transcript, error) {
	ctx, span := tracer.Start(ctx, "postgres.TranscriptRepository.GetBySessionID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var transcript entity.Transcript
	if err := db.First(&transcript, "session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	return &transcript, nil
}
