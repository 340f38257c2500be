package messaging

import (
	"math"
	"time"
)

// Stream Redis Stream 键
type Stream string

const (
	// StreamSafetyAudit 对话过程中的风险与护栏事件，由 job-worker 归档
	StreamSafetyAudit Stream = "stream:safety:audit"
	// StreamTranscriptReady 转写已落库，等待切分与向量化
	StreamTranscriptReady Stream = "stream:transcript:ready"
)

// DLQStream 超过重试次数的消息转入该流
func (s Stream) DLQStream() string { return "dlq:" + string(s) }

// ConsumerGroup 消费者组名
type ConsumerGroup string

const (
	ConsumerGroupAuditArchiver ConsumerGroup = "cg-audit-archiver"
	ConsumerGroupIndexer       ConsumerGroup = "cg-transcript-indexer"
)

// WithPrefix 多个环境共用一个 Redis 时按前缀隔离
func (g ConsumerGroup) WithPrefix(prefix string) ConsumerGroup {
	if prefix == "" {
		return g
	}
	return ConsumerGroup(prefix + ":" + string(g))
}

// 消息类型
const (
	TypeSafetyEvent     = "safety_event"
	TypeTranscriptReady = "transcript_ready"
)

// 元数据键，消费端据此恢复日志上下文
const (
	MetaRequestID = "request_id"
	MetaTraceID   = "trace_id"
	MetaSessionID = "session_id"
)

// TranscriptReadyMessage 转写完成，待切分与索引
type TranscriptReadyMessage struct {
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
}

// BackoffConfig 待处理消息重投的指数退避
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// CalculateBackoff 返回 Initial*Multiplier^retryCount，上限为 Max（Max<=0 不设上限）
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	limit := c.Max
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64)
	}
	if retryCount <= 0 || c.Multiplier <= 1 {
		return min(c.Initial, limit)
	}
	d := float64(c.Initial) * math.Pow(c.Multiplier, float64(retryCount))
	if d >= float64(limit) {
		return limit
	}
	return time.Duration(d)
}
