package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"therapy-chat-api/internal/application/safety"
	"therapy-chat-api/pkg/logger"
	pkgtracer "therapy-chat-api/pkg/tracer"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

var _ safety.AuditSink = (*Producer)(nil)

// Publish 发布消息到指定流，并带上请求与追踪标识
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		msg.SetMetadata(MetaRequestID, reqID)
	}
	msg.SetMetadata(MetaTraceID, pkgtracer.TraceID(ctx))

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishSafetyEvent 发布安全审计事件；消息 ID 同时作为归档主键
func (p *Producer) PublishSafetyEvent(ctx context.Context, event *safety.AuditEvent) error {
	msg, err := NewMessage(uuid.NewString(), TypeSafetyEvent, event.TenantID, event)
	if err != nil {
		return err
	}
	_, err = p.Publish(ctx, StreamSafetyAudit, msg)
	return err
}

// PublishTranscriptReady 通知 worker 对会话转写切分并索引
func (p *Producer) PublishTranscriptReady(ctx context.Context, tenantID, sessionID string) (string, error) {
	msg, err := NewMessage(uuid.NewString(), TypeTranscriptReady, tenantID, &TranscriptReadyMessage{
		TenantID:  tenantID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", err
	}
	msg.SetMetadata(MetaSessionID, sessionID)
	return p.Publish(ctx, StreamTranscriptReady, msg)
}
