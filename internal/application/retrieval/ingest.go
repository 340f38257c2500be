package retrieval

import (
	"context"
	"fmt"

	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
	"therapy-chat-api/pkg/logger"
)

// IngestionService 会话转写就绪后的索引流程，并维护会话状态
type IngestionService struct {
	sessions    repository.SessionRepository
	transcripts repository.TranscriptRepository
	indexer     *Indexer
}

func NewIngestionService(sessions repository.SessionRepository, transcripts repository.TranscriptRepository, indexer *Indexer) *IngestionService {
	return &IngestionService{sessions: sessions, transcripts: transcripts, indexer: indexer}
}

// ProcessSession 读取会话转写并索引；失败时将会话标记为 failed
func (s *IngestionService) ProcessSession(ctx context.Context, tenantID, sessionID string) (*IndexResult, error) {
	session, err := s.sessions.GetByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	transcript, err := s.transcripts.GetBySessionID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if transcript == nil {
		return nil, fmt.Errorf("%w: session %s", ErrTranscriptNotFound, session.ID)
	}

	if err := s.sessions.UpdateStatus(ctx, session.ID, entity.SessionStatusProcessing, ""); err != nil {
		return nil, err
	}

	res, err := s.indexer.IndexTranscript(ctx, session.TenantID, transcript)
	if err != nil {
		if uerr := s.sessions.UpdateStatus(ctx, session.ID, entity.SessionStatusFailed, err.Error()); uerr != nil {
			logger.Error(ctx, "failed to mark session failed", uerr, "session_id", session.ID)
		}
		return nil, err
	}

	if err := s.sessions.UpdateStatus(ctx, session.ID, entity.SessionStatusReady, ""); err != nil {
		return res, err
	}
	return res, nil
}
