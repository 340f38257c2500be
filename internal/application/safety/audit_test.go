package safety

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*AuditEvent
	err    error
	delay  time.Duration
}

func (s *recordingSink) PublishSafetyEvent(ctx context.Context, evt *AuditEvent) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func TestAuditor_EscalationEmitsThreeEvents(t *testing.T) {
	sink := &recordingSink{}
	a := NewAuditor(sink, time.Second)
	g := NewGuardrails(nil)

	res := g.CheckInput(context.Background(), "I have been planning to hurt someone")
	a.Record(context.Background(), Subject{TenantID: "t1", ConversationID: "c1"}, DirectionInput, res)
	a.Wait()

	got := sink.types()
	want := []string{EventRiskDetected, EventGuardrailTriggered, EventEscalationCreated}
	if len(got) != len(want) {
		t.Fatalf("events=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events=%v, want %v", got, want)
		}
	}
	if sink.events[0].TenantID != "t1" || sink.events[0].RiskLevel != "critical" {
		t.Fatalf("event=%+v", sink.events[0])
	}
}

func TestAuditor_AllowWithoutRulesIsSilent(t *testing.T) {
	sink := &recordingSink{}
	a := NewAuditor(sink, time.Second)
	a.Record(context.Background(), Subject{TenantID: "t1"}, DirectionInput, DecideInput(Assessment{}))
	a.Wait()
	if n := len(sink.types()); n != 0 {
		t.Fatalf("events=%d", n)
	}
}

func TestAuditor_SinkFailureDoesNotBlockCaller(t *testing.T) {
	sink := &recordingSink{err: errors.New("stream down"), delay: 50 * time.Millisecond}
	a := NewAuditor(sink, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	a.Record(ctx, Subject{TenantID: "t1"}, DirectionOutput, DecideOutput(Assessment{Level: RiskHigh, TriggeredRules: []string{"harmful_ways"}}, "x"))
	if time.Since(start) > 20*time.Millisecond {
		t.Fatalf("Record blocked the caller")
	}
	// 请求结束后审计仍会继续
	cancel()
	a.Wait()
	if n := len(sink.types()); n != 2 {
		t.Fatalf("events=%d, want 2", n)
	}
}
