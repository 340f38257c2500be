package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"therapy-chat-api/internal/application/chat"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
	apperrors "therapy-chat-api/pkg/errors"
)

type fakeConversations struct {
	byID    map[string]*entity.Conversation
	touched int
}

func (f *fakeConversations) GetOrCreate(_ context.Context, c *entity.Conversation) (*entity.Conversation, error) {
	if existing, ok := f.byID[c.ID]; ok {
		return existing, nil
	}
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeConversations) GetByID(_ context.Context, tenantID, id string) (*entity.Conversation, error) {
	c, ok := f.byID[id]
	if !ok || c.TenantID != tenantID {
		return nil, nil
	}
	return c, nil
}

func (f *fakeConversations) Touch(context.Context, string) error {
	f.touched++
	return nil
}

type fakeMessages struct {
	items []*entity.ConversationMessage
}

func (f *fakeMessages) Create(_ context.Context, m *entity.ConversationMessage) error {
	f.items = append(f.items, m)
	return nil
}

func (f *fakeMessages) ListRecent(_ context.Context, convID string, limit int) ([]*entity.ConversationMessage, error) {
	var out []*entity.ConversationMessage
	for _, m := range f.items {
		if m.ConversationID == convID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessages) ListByConversation(ctx context.Context, convID string, p repository.Pagination) (*repository.PagedResult[*entity.ConversationMessage], error) {
	items, _ := f.ListRecent(ctx, convID, len(f.items))
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

type countingTx struct{ calls int }

func (c *countingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	c.calls++
	return fn(ctx)
}

func TestConversations_PersistsTurnInTransaction(t *testing.T) {
	h := newHarness(t, "ok")
	msgs := &fakeMessages{}
	tx := &countingTx{}
	svc := chat.NewConversations(h.svc, &fakeConversations{byID: map[string]*entity.Conversation{}}, msgs, tx, 10)

	if _, err := svc.Chat(context.Background(), &chat.Request{TenantID: "tenant-a", Message: "hello"}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if tx.calls != 1 || len(msgs.items) != 2 {
		t.Fatalf("tx calls=%d messages=%d", tx.calls, len(msgs.items))
	}
}

func TestConversations_PersistsTurnsAndReplaysHistory(t *testing.T) {
	h := newHarness(t, "Your therapist suggested a grounding exercise.")
	convs := &fakeConversations{byID: map[string]*entity.Conversation{}}
	msgs := &fakeMessages{}
	svc := chat.NewConversations(h.svc, convs, msgs, nil, 10)

	first, err := svc.Chat(context.Background(), &chat.Request{TenantID: "tenant-a", Message: "What coping strategies did my therapist suggest?"})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if first.ConversationID == "" {
		t.Fatalf("conversation id not assigned")
	}
	if len(msgs.items) != 2 || msgs.items[0].Role != entity.RoleUser || msgs.items[1].Role != entity.RoleAssistant {
		t.Fatalf("messages=%+v", msgs.items)
	}
	var meta struct {
		Sources []chat.Source `json:"sources"`
	}
	if err := json.Unmarshal(msgs.items[1].Metadata, &meta); err != nil || len(meta.Sources) != 1 {
		t.Fatalf("assistant metadata=%s err=%v", msgs.items[1].Metadata, err)
	}

	_, err = svc.Chat(context.Background(), &chat.Request{
		TenantID:       "tenant-a",
		ConversationID: first.ConversationID,
		Message:        "Can you say more?",
	})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if got := len(h.completer.last.Messages); got != 3 {
		t.Fatalf("history not replayed: %d messages", got)
	}
	if convs.touched != 2 {
		t.Fatalf("touched=%d", convs.touched)
	}

	_, page, err := svc.History(context.Background(), "tenant-a", first.ConversationID, repository.NewPagination(1, 20))
	if err != nil || page.Total != 4 {
		t.Fatalf("page=%+v err=%v", page, err)
	}
	conv, _, _ := svc.History(context.Background(), "tenant-b", first.ConversationID, repository.NewPagination(1, 20))
	if conv != nil {
		t.Fatalf("other tenant can read conversation")
	}
}

func TestConversations_EscalatedReplyReplaysWithoutCrisisBlock(t *testing.T) {
	reply := "I'm really glad you shared this with me."
	h := newHarness(t, reply)
	msgs := &fakeMessages{}
	svc := chat.NewConversations(h.svc, &fakeConversations{byID: map[string]*entity.Conversation{}}, msgs, nil, 10)

	first, err := svc.Chat(context.Background(), &chat.Request{TenantID: "tenant-a", Message: "I want to end my life tonight"})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if !first.Escalated || msgs.items[1].Content != first.Text {
		t.Fatalf("stored reply should match what the user saw: %q", msgs.items[1].Content)
	}

	_, err = svc.Chat(context.Background(), &chat.Request{
		TenantID:       "tenant-a",
		ConversationID: first.ConversationID,
		Message:        "Thanks, can we talk about my sleep?",
	})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	history := h.completer.last.Messages
	if len(history) != 3 || history[1].Role != entity.RoleAssistant {
		t.Fatalf("history=%+v", history)
	}
	if history[1].Content != reply {
		t.Fatalf("assistant history carries crisis block: %q", history[1].Content)
	}
}

func TestConversations_FailedTurnIsNotPersisted(t *testing.T) {
	h := newHarness(t, "")
	h.completer.err = context.DeadlineExceeded
	msgs := &fakeMessages{}
	svc := chat.NewConversations(h.svc, &fakeConversations{byID: map[string]*entity.Conversation{}}, msgs, nil, 10)
	if _, err := svc.Chat(context.Background(), &chat.Request{TenantID: "tenant-a", Message: "hello"}); err == nil {
		t.Fatalf("want error")
	}
	if len(msgs.items) != 0 {
		t.Fatalf("failed turn persisted %d messages", len(msgs.items))
	}
}

func TestConversations_RejectsForeignConversation(t *testing.T) {
	h := newHarness(t, "ok")
	convs := &fakeConversations{byID: map[string]*entity.Conversation{
		"conv-1": entity.NewConversation("conv-1", "tenant-a", ""),
	}}
	msgs := &fakeMessages{}
	svc := chat.NewConversations(h.svc, convs, msgs, nil, 10)

	_, err := svc.Chat(context.Background(), &chat.Request{TenantID: "tenant-b", ConversationID: "conv-1", Message: "hello"})
	if !errors.Is(err, apperrors.ErrConversationNotFound) {
		t.Fatalf("err=%v", err)
	}
	if len(msgs.items) != 0 || h.completer.calls != 0 {
		t.Fatalf("foreign conversation reached the model")
	}
}
