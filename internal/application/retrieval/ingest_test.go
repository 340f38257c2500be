package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/infrastructure/persistence/memory"
)

type fakeSessions struct {
	session  *entity.Session
	statuses []entity.SessionStatus
	lastErr  string
}

func (f *fakeSessions) GetByID(_ context.Context, tenantID, id string) (*entity.Session, error) {
	if f.session == nil || f.session.TenantID != tenantID || f.session.ID != id {
		return nil, nil
	}
	return f.session, nil
}

func (f *fakeSessions) UpdateStatus(_ context.Context, _ string, status entity.SessionStatus, msg string) error {
	f.statuses = append(f.statuses, status)
	f.lastErr = msg
	return nil
}

type fakeTranscripts struct {
	transcript *entity.Transcript
}

func (f *fakeTranscripts) GetBySessionID(context.Context, string) (*entity.Transcript, error) {
	return f.transcript, nil
}

func TestIngestionService_MarksReady(t *testing.T) {
	sessions := &fakeSessions{session: &entity.Session{ID: "s1", TenantID: "t1"}}
	svc := retrieval.NewIngestionService(sessions, &fakeTranscripts{transcript: sampleTranscript("s1")},
		retrieval.NewIndexer(nil, &fakeEmbedder{}, memory.NewVectorStore(), 0))

	res, err := svc.ProcessSession(context.Background(), "t1", "s1")
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if res.Chunks == 0 {
		t.Fatalf("no chunks indexed")
	}
	want := []entity.SessionStatus{entity.SessionStatusProcessing, entity.SessionStatusReady}
	if len(sessions.statuses) != 2 || sessions.statuses[0] != want[0] || sessions.statuses[1] != want[1] {
		t.Fatalf("statuses=%v", sessions.statuses)
	}
}

func TestIngestionService_MarksFailed(t *testing.T) {
	sessions := &fakeSessions{session: &entity.Session{ID: "s1", TenantID: "t1"}}
	boom := errors.New("embedding quota exhausted")
	svc := retrieval.NewIngestionService(sessions, &fakeTranscripts{transcript: sampleTranscript("s1")},
		retrieval.NewIndexer(nil, &fakeEmbedder{err: boom}, memory.NewVectorStore(), 0))

	if _, err := svc.ProcessSession(context.Background(), "t1", "s1"); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	last := sessions.statuses[len(sessions.statuses)-1]
	if last != entity.SessionStatusFailed || sessions.lastErr == "" {
		t.Fatalf("statuses=%v msg=%q", sessions.statuses, sessions.lastErr)
	}
}

func TestIngestionService_OtherTenantSessionNotFound(t *testing.T) {
	sessions := &fakeSessions{session: &entity.Session{ID: "s1", TenantID: "t1"}}
	svc := retrieval.NewIngestionService(sessions, &fakeTranscripts{},
		retrieval.NewIndexer(nil, &fakeEmbedder{}, memory.NewVectorStore(), 0))
	if _, err := svc.ProcessSession(context.Background(), "t2", "s1"); !errors.Is(err, retrieval.ErrSessionNotFound) {
		t.Fatalf("want not found")
	}
	if len(sessions.statuses) != 0 {
		t.Fatalf("status changed for foreign tenant")
	}
}
