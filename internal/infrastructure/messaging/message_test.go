package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"therapy-chat-api/pkg/logger"
)

func TestCalculateBackoff(t *testing.T) {
	b := BackoffConfig{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}
	cases := map[int]time.Duration{
		0: time.Second,
		1: 2 * time.Second,
		3: 8 * time.Second,
		4: 10 * time.Second,
		9: 10 * time.Second,
	}
	for retry, want := range cases {
		if got := b.CalculateBackoff(retry); got != want {
			t.Fatalf("CalculateBackoff(%d)=%s, want %s", retry, got, want)
		}
	}
}

func TestDecode(t *testing.T) {
	msg, _ := NewMessage("m1", TypeTranscriptReady, "t1", &TranscriptReadyMessage{TenantID: "t1", SessionID: "s1"})
	msg.SetMetadata(MetaSessionID, "s1")
	msg.SetMetadata(MetaRequestID, "")

	raw, err := jsonString(msg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decode(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": raw}})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var payload TranscriptReadyMessage
	if err := got.UnmarshalPayload(&payload); err != nil || payload.SessionID != "s1" {
		t.Fatalf("payload=%+v err=%v", payload, err)
	}
	if _, ok := got.Metadata[MetaRequestID]; ok {
		t.Fatalf("empty metadata should not be stored")
	}

	if _, err := decode(redis.XMessage{Values: map[string]interface{}{"data": 1}}); err == nil {
		t.Fatalf("non-string payload should fail")
	}
	if _, err := decode(redis.XMessage{Values: map[string]interface{}{"data": "{"}}); err == nil {
		t.Fatalf("bad json should fail")
	}
}

func TestMessageContext(t *testing.T) {
	msg := &Message{TenantID: "t1", Metadata: map[string]string{MetaSessionID: "s1", MetaTraceID: "abc"}}
	ctx := messageContext(context.Background(), msg)
	if ctx.Value(logger.TenantIDKey) != "t1" || ctx.Value(logger.SessionIDKey) != "s1" || ctx.Value(logger.TraceIDKey) != "abc" {
		t.Fatalf("context values not injected")
	}
	if ctx.Value(logger.RequestIDKey) != nil {
		t.Fatalf("missing request id should stay unset")
	}
}

func TestConsumerGroupPrefix(t *testing.T) {
	if got := ConsumerGroupIndexer.WithPrefix(""); got != ConsumerGroupIndexer {
		t.Fatalf("got=%s", got)
	}
	if got := ConsumerGroupIndexer.WithPrefix("staging"); got != "staging:cg-transcript-indexer" {
		t.Fatalf("got=%s", got)
	}
	if StreamSafetyAudit.DLQStream() != "dlq:stream:safety:audit" {
		t.Fatalf("dlq=%s", StreamSafetyAudit.DLQStream())
	}
}

func jsonString(m *Message) (string, error) {
	b, err := json.Marshal(m)
	return string(b), err
}
