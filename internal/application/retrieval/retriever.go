package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"therapy-chat-api/pkg/logger"
	"therapy-chat-api/pkg/metrics"
	"therapy-chat-api/pkg/tracer"
)

const (
	defaultTopK = 5
	maxTopK     = 10
)

// Options 检索参数边界
type Options struct {
	DefaultTopK int
	MaxTopK     int
}

// Retriever 带租户隔离的向量检索
type Retriever struct {
	store VectorStore
	opts  Options
}

func NewRetriever(store VectorStore, opts Options) *Retriever {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = defaultTopK
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = maxTopK
	}
	if opts.DefaultTopK > opts.MaxTopK {
		opts.DefaultTopK = opts.MaxTopK
	}
	return &Retriever{store: store, opts: opts}
}

func (r *Retriever) Enabled() bool {
	return r != nil && r.store != nil
}

// ResolveTopK 非正值使用默认值，超过 MaxTopK 返回 ErrTopKTooLarge
func (r *Retriever) ResolveTopK(topK int) (int, error) {
	if topK <= 0 {
		return r.opts.DefaultTopK, nil
	}
	if topK > r.opts.MaxTopK {
		return 0, fmt.Errorf("%w: %d > %d", ErrTopKTooLarge, topK, r.opts.MaxTopK)
	}
	return topK, nil
}

// Search 返回租户内最相似的 chunk，按相似度降序。
// MinScore 在 TopK 截断之后应用，结果可能少于 TopK。
func (r *Retriever) Search(ctx context.Context, p SearchParams) ([]*SearchResult, error) {
	if !r.Enabled() {
		return nil, ErrVectorDisabled
	}
	tenantID := strings.TrimSpace(p.TenantID)
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if len(p.QueryVector) == 0 {
		return nil, ErrEmptyQueryVector
	}
	topK, err := r.ResolveTopK(p.TopK)
	if err != nil {
		return nil, err
	}
	backend := r.store.Backend()

	ctx, span := tracer.Start(ctx, "retrieval.Search")
	span.SetAttributes(
		attribute.String("vector.backend", backend),
		attribute.Int("vector.top_k", topK),
		attribute.Int("vector.scope_size", len(p.SessionIDs)),
	)
	defer span.End()

	start := time.Now()
	candidates, err := r.store.Search(ctx, &VectorQuery{
		TenantID:   tenantID,
		Vector:     p.QueryVector,
		TopK:       topK,
		SessionIDs: p.SessionIDs,
	})
	metrics.VectorSearchDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VectorSearchTotal.WithLabelValues(backend, "error").Inc()
		tracer.RecordError(span, err)
		return nil, err
	}
	metrics.VectorSearchTotal.WithLabelValues(backend, "success").Inc()

	scope := make(map[string]struct{}, len(p.SessionIDs))
	for _, id := range p.SessionIDs {
		// 空白 id 不参与限定，与存储层的过滤表达式一致
		if id = strings.TrimSpace(id); id != "" {
			scope[id] = struct{}{}
		}
	}

	results := make([]*SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.Chunk == nil {
			continue
		}
		if c.Chunk.TenantID != tenantID {
			// 存储层未正确过滤时丢弃并告警，跨租户结果绝不返回
			logger.Error(ctx, "vector store returned chunk of another tenant", nil,
				"backend", backend,
				"chunk_id", c.Chunk.ID,
			)
			continue
		}
		if len(scope) > 0 {
			if _, ok := scope[c.Chunk.SessionID]; !ok {
				continue
			}
		}
		c.Score = ClampScore(c.Score)
		results = append(results, c)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	if p.MinScore > 0 {
		kept := results[:0]
		for _, res := range results {
			if res.Score >= p.MinScore {
				kept = append(kept, res)
			}
		}
		results = kept
	}

	span.SetAttributes(attribute.Int("vector.results", len(results)))
	return results, nil
}

// SearchSession 仅检索单个会话
func (r *Retriever) SearchSession(ctx context.Context, tenantID, sessionID string, queryVector []float32, topK int) ([]*SearchResult, error) {
	return r.Search(ctx, SearchParams{
		TenantID:    tenantID,
		QueryVector: queryVector,
		TopK:        topK,
		SessionIDs:  []string{sessionID},
	})
}

// ChunkCount 租户已索引的 chunk 数
func (r *Retriever) ChunkCount(ctx context.Context, tenantID string) (int64, error) {
	if !r.Enabled() {
		return 0, ErrVectorDisabled
	}
	if strings.TrimSpace(tenantID) == "" {
		return 0, ErrTenantRequired
	}
	return r.store.CountChunks(ctx, tenantID)
}

// SessionsWithEmbeddings 租户下已有向量的会话
func (r *Retriever) SessionsWithEmbeddings(ctx context.Context, tenantID string) ([]string, error) {
	if !r.Enabled() {
		return nil, ErrVectorDisabled
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantRequired
	}
	return r.store.SessionsWithEmbeddings(ctx, tenantID)
}
