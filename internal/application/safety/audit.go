package safety

import (
	"context"
	"sync"
	"time"

	"therapy-chat-api/pkg/logger"
	"therapy-chat-api/pkg/metrics"
)

// 审计事件类型
const (
	EventRiskDetected       = "safety.risk_detected"
	EventGuardrailTriggered = "safety.guardrail_triggered"
	EventEscalationCreated  = "safety.escalation_created"
)

// Subject 审计事件关联的调用方信息
type Subject struct {
	TenantID       string
	UserID         string
	ConversationID string
}

// AuditEvent 一条安全审计事件
type AuditEvent struct {
	Type               string    `json:"event_type"`
	TenantID           string    `json:"tenant_id"`
	UserID             string    `json:"user_id,omitempty"`
	ConversationID     string    `json:"conversation_id,omitempty"`
	Direction          Direction `json:"direction"`
	RiskLevel          string    `json:"risk_level"`
	Action             Action    `json:"action,omitempty"`
	TriggeredRules     []string  `json:"triggered_rules"`
	RequiresEscalation bool      `json:"requires_escalation"`
	RecommendedAction  string    `json:"recommended_action,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// AuditSink 审计事件发布端口
type AuditSink interface {
	PublishSafetyEvent(ctx context.Context, event *AuditEvent) error
}

// Auditor 异步发布审计事件：失败只记录日志，不影响对话
type Auditor struct {
	sink    AuditSink
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewAuditor sink 为 nil 时所有记录为空操作
func NewAuditor(sink AuditSink, timeout time.Duration) *Auditor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Auditor{sink: sink, timeout: timeout, now: time.Now}
}

// Record 记录一次护栏检查：命中规则时发 risk_detected，非 ALLOW 时发
// guardrail_triggered，ESCALATE 时追加 escalation_created
func (a *Auditor) Record(ctx context.Context, subject Subject, dir Direction, res Result) {
	if a == nil || a.sink == nil {
		return
	}
	events := a.eventsFor(subject, dir, res)
	if len(events) == 0 {
		return
	}

	bg := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for _, evt := range events {
			a.publish(bg, evt)
		}
	}()
}

func (a *Auditor) eventsFor(subject Subject, dir Direction, res Result) []*AuditEvent {
	as := res.Assessment
	base := AuditEvent{
		TenantID:           subject.TenantID,
		UserID:             subject.UserID,
		ConversationID:     subject.ConversationID,
		Direction:          dir,
		RiskLevel:          as.Level.String(),
		TriggeredRules:     as.TriggeredRules,
		RequiresEscalation: as.RequiresEscalation,
		RecommendedAction:  as.RecommendedAction,
		OccurredAt:         a.now().UTC(),
	}

	var out []*AuditEvent
	if as.HasRisk() {
		evt := base
		evt.Type = EventRiskDetected
		out = append(out, &evt)
	}
	if res.Action != ActionAllow {
		evt := base
		evt.Type = EventGuardrailTriggered
		evt.Action = res.Action
		out = append(out, &evt)
	}
	if res.Action == ActionEscalate {
		evt := base
		evt.Type = EventEscalationCreated
		evt.Action = res.Action
		out = append(out, &evt)
	}
	return out
}

func (a *Auditor) publish(ctx context.Context, evt *AuditEvent) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.sink.PublishSafetyEvent(ctx, evt); err != nil {
		metrics.AuditEventsTotal.WithLabelValues(evt.Type, "error").Inc()
		logger.Warn(ctx, "failed to publish safety audit event",
			"event_type", evt.Type,
			"error", err.Error(),
		)
		return
	}
	metrics.AuditEventsTotal.WithLabelValues(evt.Type, "ok").Inc()
}

// Wait 等待已提交的审计发布完成（优雅退出与测试使用）
func (a *Auditor) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}
