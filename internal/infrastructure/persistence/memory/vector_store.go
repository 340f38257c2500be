// Package memory 提供进程内的向量与计数存储，用于本地开发与测试
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/domain/entity"
)

const backendName = "memory"

// VectorStore 暴力余弦检索；候选集先按租户与会话过滤再排序
type VectorStore struct {
	mu     sync.RWMutex
	chunks map[string]*entity.SessionChunk
}

func NewVectorStore() *VectorStore {
	return &VectorStore{chunks: make(map[string]*entity.SessionChunk)}
}

var _ retrieval.VectorStore = (*VectorStore)(nil)

func (s *VectorStore) Backend() string { return backendName }

func (s *VectorStore) InsertChunks(_ context.Context, chunks []*entity.SessionChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if c == nil || c.ID == "" {
			continue
		}
		cp := *c
		cp.Embedding = append([]float32(nil), c.Embedding...)
		cp.SegmentIndices = append([]int(nil), c.SegmentIndices...)
		s.chunks[c.ID] = &cp
	}
	return nil
}

func (s *VectorStore) DeleteSessionChunks(_ context.Context, tenantID, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.chunks {
		if c.TenantID == tenantID && c.SessionID == sessionID {
			delete(s.chunks, id)
			n++
		}
	}
	return n, nil
}

func (s *VectorStore) Search(_ context.Context, q *retrieval.VectorQuery) ([]*retrieval.SearchResult, error) {
	if q == nil || strings.TrimSpace(q.TenantID) == "" {
		return nil, retrieval.ErrTenantRequired
	}
	scope := make(map[string]struct{}, len(q.SessionIDs))
	for _, id := range q.SessionIDs {
		if id = strings.TrimSpace(id); id != "" {
			scope[id] = struct{}{}
		}
	}

	s.mu.RLock()
	out := make([]*retrieval.SearchResult, 0)
	for _, c := range s.chunks {
		if c.TenantID != q.TenantID || !c.HasEmbedding() {
			continue
		}
		if len(scope) > 0 {
			if _, ok := scope[c.SessionID]; !ok {
				continue
			}
		}
		cp := *c
		out = append(out, &retrieval.SearchResult{Chunk: &cp, Score: cosine(q.Vector, c.Embedding)})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	if q.TopK > 0 && len(out) > q.TopK {
		out = out[:q.TopK]
	}
	return out, nil
}

func (s *VectorStore) CountChunks(_ context.Context, tenantID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.chunks {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (s *VectorStore) SessionsWithEmbeddings(_ context.Context, tenantID string) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, c := range s.chunks {
		if c.TenantID == tenantID && c.HasEmbedding() {
			seen[c.SessionID] = struct{}{}
		}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// cosine 维度不一致或零向量时返回 0
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
