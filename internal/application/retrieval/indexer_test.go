package retrieval_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"therapy-chat-api/internal/application/chunking"
	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/infrastructure/persistence/memory"
)

// fakeEmbedder 以文本长度生成二维向量
type fakeEmbedder struct {
	batches [][]string
	err     error
	short   bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, _ := f.Embed(ctx, t)
		out = append(out, v)
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func sampleTranscript(sessionID string) *entity.Transcript {
	long := strings.Repeat("word ", 60)
	return &entity.Transcript{
		ID:        "tr-" + sessionID,
		SessionID: sessionID,
		Segments: entity.Segments{
			{Text: long, Speaker: "Therapist", Start: 0, End: 10},
			{Text: long, Speaker: "Patient", Start: 10, End: 20},
			{Text: long, Speaker: "Therapist", Start: 20, End: 30},
		},
	}
}

func TestIndexer_IndexTranscript(t *testing.T) {
	ctx := context.Background()
	store := memory.NewVectorStore()
	emb := &fakeEmbedder{}
	chunker := chunking.New(chunking.Config{TargetSize: 50, MaxSize: 120, MinSize: 10})
	idx := retrieval.NewIndexer(chunker, emb, store, 2)

	res, err := idx.IndexTranscript(ctx, "t1", sampleTranscript("s1"))
	if err != nil {
		t.Fatalf("IndexTranscript: %v", err)
	}
	if res.Chunks != 3 || res.Deleted != 0 {
		t.Fatalf("res=%+v", res)
	}
	if len(emb.batches) != 2 || len(emb.batches[0]) != 2 || len(emb.batches[1]) != 1 {
		t.Fatalf("batches=%d", len(emb.batches))
	}
	if n, _ := store.CountChunks(ctx, "t1"); n != 3 {
		t.Fatalf("stored=%d", n)
	}

	// 重新索引先整体替换旧 chunk
	res, err = idx.IndexTranscript(ctx, "t1", sampleTranscript("s1"))
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if res.Deleted != 3 {
		t.Fatalf("deleted=%d", res.Deleted)
	}
	if n, _ := store.CountChunks(ctx, "t1"); n != 3 {
		t.Fatalf("stored after reindex=%d", n)
	}
}

func TestIndexer_EmbeddingFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewVectorStore()

	boom := errors.New("provider down")
	idx := retrieval.NewIndexer(nil, &fakeEmbedder{err: boom}, store, 0)
	if _, err := idx.IndexTranscript(ctx, "t1", sampleTranscript("s1")); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}

	idx = retrieval.NewIndexer(nil, &fakeEmbedder{short: true}, store, 0)
	if _, err := idx.IndexTranscript(ctx, "t1", sampleTranscript("s1")); !errors.Is(err, retrieval.ErrEmbeddingCountMismatch) {
		t.Fatalf("err=%v", err)
	}
	if n, _ := store.CountChunks(ctx, "t1"); n != 0 {
		t.Fatalf("partial write: %d", n)
	}
}

func TestIndexer_RequiresTenant(t *testing.T) {
	idx := retrieval.NewIndexer(nil, &fakeEmbedder{}, memory.NewVectorStore(), 0)
	if _, err := idx.IndexTranscript(context.Background(), " ", sampleTranscript("s1")); !errors.Is(err, retrieval.ErrTenantRequired) {
		t.Fatalf("err=%v", err)
	}
}
