// Package worker 注册 job-worker 的 Stream 消息处理器
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/application/safety"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
	"therapy-chat-api/internal/infrastructure/messaging"
	"therapy-chat-api/pkg/logger"
)

// SessionProcessor 会话索引入口，由 retrieval.IngestionService 实现
type SessionProcessor interface {
	ProcessSession(ctx context.Context, tenantID, sessionID string) (*retrieval.IndexResult, error)
}

// TranscriptReadyHandler 转写就绪后切分并索引。
// 会话或转写不存在时重投没有意义，直接确认。
func TranscriptReadyHandler(processor SessionProcessor) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.TranscriptReadyMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("invalid transcript_ready payload: %w", err)
		}
		if payload.TenantID == "" || payload.SessionID == "" {
			logger.Warn(ctx, "transcript_ready without tenant or session", "message_id", msg.ID)
			return nil
		}

		ctx = logger.WithContext(ctx, logger.SessionIDKey, payload.SessionID)
		res, err := processor.ProcessSession(ctx, payload.TenantID, payload.SessionID)
		if err != nil {
			if errors.Is(err, retrieval.ErrSessionNotFound) || errors.Is(err, retrieval.ErrTranscriptNotFound) {
				logger.Warn(ctx, "skipping transcript_ready", "error", err.Error())
				return nil
			}
			return err
		}
		logger.Info(ctx, "session indexed", "chunks", res.Chunks, "deleted", res.Deleted)
		return nil
	}
}

// safetyDetails SafetyEvent.Details 中保存的规则命中详情
type safetyDetails struct {
	TriggeredRules     []string `json:"triggered_rules"`
	RequiresEscalation bool     `json:"requires_escalation"`
	RecommendedAction  string   `json:"recommended_action,omitempty"`
}

// SafetyEventHandler 将审计事件归档到 safety_events，消息 ID 作为主键保证幂等
func SafetyEventHandler(repo repository.SafetyEventRepository) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var evt safety.AuditEvent
		if err := msg.UnmarshalPayload(&evt); err != nil {
			return fmt.Errorf("invalid safety_event payload: %w", err)
		}
		return repo.Create(ctx, SafetyEventFromAudit(msg.ID, &evt))
	}
}

// SafetyEventFromAudit 审计事件转为归档实体
func SafetyEventFromAudit(id string, evt *safety.AuditEvent) *entity.SafetyEvent {
	details, _ := json.Marshal(safetyDetails{
		TriggeredRules:     evt.TriggeredRules,
		RequiresEscalation: evt.RequiresEscalation,
		RecommendedAction:  evt.RecommendedAction,
	})
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return &entity.SafetyEvent{
		ID:             id,
		EventType:      evt.Type,
		TenantID:       evt.TenantID,
		UserID:         evt.UserID,
		ConversationID: evt.ConversationID,
		Direction:      string(evt.Direction),
		RiskLevel:      evt.RiskLevel,
		Action:         string(evt.Action),
		Details:        details,
		OccurredAt:     occurred,
	}
}
