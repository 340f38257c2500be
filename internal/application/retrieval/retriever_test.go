package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/infrastructure/persistence/memory"
)

func storedChunk(id, tenant, session string, vec ...float32) *entity.SessionChunk {
	return &entity.SessionChunk{
		ID:        id,
		TenantID:  tenant,
		SessionID: session,
		Chunk:     entity.Chunk{Content: "content " + id},
		Embedding: vec,
	}
}

func TestRetriever_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewVectorStore()
	_ = store.InsertChunks(ctx, []*entity.SessionChunk{
		storedChunk("b-1", "tenant-b", "sb", 0.6, 0.8),
	})
	r := retrieval.NewRetriever(store, retrieval.Options{})

	// 使用与 B 的 chunk 完全相同的向量查询 A
	res, err := r.Search(ctx, retrieval.SearchParams{TenantID: "tenant-a", QueryVector: []float32{0.6, 0.8}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("tenant-a saw %d chunks of tenant-b", len(res))
	}
}

// leakyStore 模拟未按租户过滤的存储实现
type leakyStore struct {
	results []*retrieval.SearchResult
	err     error
}

func (s *leakyStore) Backend() string { return "leaky" }
func (s *leakyStore) Search(context.Context, *retrieval.VectorQuery) ([]*retrieval.SearchResult, error) {
	return s.results, s.err
}
func (s *leakyStore) InsertChunks(context.Context, []*entity.SessionChunk) error { return nil }
func (s *leakyStore) DeleteSessionChunks(context.Context, string, string) (int64, error) {
	return 0, nil
}
func (s *leakyStore) CountChunks(context.Context, string) (int64, error) { return 0, nil }
func (s *leakyStore) SessionsWithEmbeddings(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestRetriever_DropsForeignTenantResults(t *testing.T) {
	store := &leakyStore{results: []*retrieval.SearchResult{
		{Chunk: storedChunk("x", "tenant-b", "s"), Score: 0.99},
		{Chunk: storedChunk("y", "tenant-a", "s"), Score: 1.2},
	}}
	r := retrieval.NewRetriever(store, retrieval.Options{})
	res, err := r.Search(context.Background(), retrieval.SearchParams{TenantID: "tenant-a", QueryVector: []float32{1}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].Chunk.ID != "y" {
		t.Fatalf("res=%+v", res)
	}
	if res[0].Score != 1 {
		t.Fatalf("score not clamped: %f", res[0].Score)
	}
}

func TestRetriever_TopKThenMinScore(t *testing.T) {
	store := &leakyStore{results: []*retrieval.SearchResult{
		{Chunk: storedChunk("c", "t", "s"), Score: 0.40},
		{Chunk: storedChunk("a", "t", "s"), Score: 0.90},
		{Chunk: storedChunk("b", "t", "s"), Score: 0.70},
		{Chunk: storedChunk("d", "t", "s"), Score: 0.30},
	}}
	r := retrieval.NewRetriever(store, retrieval.Options{})

	res, _ := r.Search(context.Background(), retrieval.SearchParams{TenantID: "t", QueryVector: []float32{1}, TopK: 3})
	if len(res) != 3 || res[0].Chunk.ID != "a" || res[1].Chunk.ID != "b" || res[2].Chunk.ID != "c" {
		t.Fatalf("ordering=%v", ids(res))
	}

	res, _ = r.Search(context.Background(), retrieval.SearchParams{TenantID: "t", QueryVector: []float32{1}, TopK: 3, MinScore: 0.5})
	if len(res) != 2 {
		t.Fatalf("min score should filter after top_k: %v", ids(res))
	}
}

func TestRetriever_SessionScope(t *testing.T) {
	ctx := context.Background()
	store := memory.NewVectorStore()
	_ = store.InsertChunks(ctx, []*entity.SessionChunk{
		storedChunk("1", "t", "s1", 1, 0),
		storedChunk("2", "t", "s2", 1, 0),
	})
	r := retrieval.NewRetriever(store, retrieval.Options{})
	res, err := r.SearchSession(ctx, "t", "s2", []float32{1, 0}, 5)
	if err != nil || len(res) != 1 || res[0].Chunk.SessionID != "s2" {
		t.Fatalf("res=%v err=%v", ids(res), err)
	}

	// 空白 id 不限定范围，与未指定会话时相同
	res, err = r.Search(ctx, retrieval.SearchParams{TenantID: "t", QueryVector: []float32{1, 0}, TopK: 5, SessionIDs: []string{" "}})
	if err != nil || len(res) != 2 {
		t.Fatalf("blank scope res=%v err=%v", ids(res), err)
	}
	res, err = r.Search(ctx, retrieval.SearchParams{TenantID: "t", QueryVector: []float32{1, 0}, TopK: 5, SessionIDs: []string{"", "s1"}})
	if err != nil || len(res) != 1 || res[0].Chunk.SessionID != "s1" {
		t.Fatalf("mixed scope res=%v err=%v", ids(res), err)
	}
}

func TestRetriever_Validation(t *testing.T) {
	r := retrieval.NewRetriever(memory.NewVectorStore(), retrieval.Options{})
	if _, err := r.Search(context.Background(), retrieval.SearchParams{QueryVector: []float32{1}}); !errors.Is(err, retrieval.ErrTenantRequired) {
		t.Fatalf("missing tenant err=%v", err)
	}
	if _, err := r.Search(context.Background(), retrieval.SearchParams{TenantID: "t"}); !errors.Is(err, retrieval.ErrEmptyQueryVector) {
		t.Fatalf("empty vector err=%v", err)
	}
	disabled := retrieval.NewRetriever(nil, retrieval.Options{})
	if _, err := disabled.Search(context.Background(), retrieval.SearchParams{TenantID: "t", QueryVector: []float32{1}}); !errors.Is(err, retrieval.ErrVectorDisabled) {
		t.Fatalf("disabled err=%v", err)
	}
}

func TestRetriever_ResolveTopK(t *testing.T) {
	r := retrieval.NewRetriever(memory.NewVectorStore(), retrieval.Options{DefaultTopK: 5, MaxTopK: 10})
	cases := map[int]int{0: 5, -3: 5, 1: 1, 10: 10}
	for in, want := range cases {
		if got, err := r.ResolveTopK(in); err != nil || got != want {
			t.Fatalf("ResolveTopK(%d)=%d,%v, want %d", in, got, err, want)
		}
	}
	if _, err := r.ResolveTopK(50); !errors.Is(err, retrieval.ErrTopKTooLarge) {
		t.Fatalf("ResolveTopK(50) err=%v, want ErrTopKTooLarge", err)
	}
	_, err := r.Search(context.Background(), retrieval.SearchParams{TenantID: "t", QueryVector: []float32{1}, TopK: 11})
	if !errors.Is(err, retrieval.ErrTopKTooLarge) {
		t.Fatalf("Search err=%v, want ErrTopKTooLarge", err)
	}
}

func ids(res []*retrieval.SearchResult) []string {
	out := make([]string, 0, len(res))
	for _, r := range res {
		out = append(out, r.Chunk.ID)
	}
	return out
}
