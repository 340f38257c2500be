package milvus

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"therapy-chat-api/internal/application/retrieval"
	domain "therapy-chat-api/internal/domain/entity"
)

const (
	backendName     = "milvus"
	countField      = "count(*)"
	defaultSearchEf = 128
)

// VectorStore 基于 Milvus 的 chunk 向量存储：每个租户一个分区，检索同时叠加 tenant_id 表达式
type VectorStore struct {
	client    *Client
	dimension int
}

// NewVectorStore 创建向量存储
func NewVectorStore(client *Client, dimension int) *VectorStore {
	return &VectorStore{client: client, dimension: dimension}
}

var _ retrieval.VectorStore = (*VectorStore)(nil)

func (s *VectorStore) Backend() string { return backendName }

func (s *VectorStore) ready() error {
	if s == nil || s.client == nil || s.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

// EnsureCollection 确保集合与 HNSW 索引可用（不存在则创建），不做破坏性操作
func (s *VectorStore) EnsureCollection(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	collName := s.client.Collection()
	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection",
		trace.WithAttributes(attribute.String("collection", collName)))
	defer span.End()

	exists, err := s.client.milvus.HasCollection(ctx, collName)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		if err := s.client.milvus.CreateCollection(ctx, SessionChunksSchema(collName, s.dimension), entity.DefaultShardNumber); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create collection: %w", err)
		}
		if err := s.createIndex(ctx); err != nil {
			return err
		}
	}
	return s.client.LoadCollection(ctx)
}

func (s *VectorStore) createIndex(ctx context.Context) error {
	h := s.client.hnsw
	idx, err := entity.NewIndexHNSW(entity.COSINE, h.m, h.efConstruction)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := s.client.milvus.CreateIndex(ctx, s.client.Collection(), fieldVector, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// hasPartition 新租户尚未写入任何 chunk 时分区不存在
func (s *VectorStore) hasPartition(ctx context.Context, partition string) (bool, error) {
	has, err := s.client.milvus.HasPartition(ctx, s.client.Collection(), partition)
	if err != nil {
		return false, fmt.Errorf("failed to check partition: %w", err)
	}
	return has, nil
}

// Search 在租户分区内检索；COSINE 度量返回的就是相似度，收敛到 [0,1] 即可
func (s *VectorStore) Search(ctx context.Context, q *retrieval.VectorQuery) ([]*retrieval.SearchResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if q == nil || q.TenantID == "" {
		return nil, retrieval.ErrTenantRequired
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("tenant_id", q.TenantID),
			attribute.Int("top_k", q.TopK),
			attribute.Int("session_scope", len(q.SessionIDs)),
		))
	defer span.End()

	partition := PartitionName(q.TenantID)
	has, err := s.hasPartition(ctx, partition)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !has || q.TopK <= 0 {
		return []*retrieval.SearchResult{}, nil
	}

	ef := s.client.hnsw.searchEf
	if ef < q.TopK {
		ef = q.TopK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := s.client.milvus.Search(ctx,
		s.client.Collection(),
		[]string{partition},
		tenantExpr(q.TenantID, q.SessionIDs),
		searchOutputFields,
		[]entity.Vector{entity.FloatVector(q.Vector)},
		fieldVector,
		entity.COSINE,
		q.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	out := make([]*retrieval.SearchResult, 0, q.TopK)
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			out = append(out, &retrieval.SearchResult{
				Chunk: chunkFromResultSet(result.Fields, i),
				Score: retrieval.ClampScore(float64(result.Scores[i])),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > q.TopK {
		out = out[:q.TopK]
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

func chunkFromResultSet(fields client.ResultSet, i int) *domain.SessionChunk {
	c := &domain.SessionChunk{}
	if col, ok := fields.GetColumn(fieldID).(*entity.ColumnVarChar); ok {
		c.ID = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldTenantID).(*entity.ColumnVarChar); ok {
		c.TenantID = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldSessionID).(*entity.ColumnVarChar); ok {
		c.SessionID = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldTranscriptID).(*entity.ColumnVarChar); ok {
		c.TranscriptID = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldChunkIndex).(*entity.ColumnInt64); ok {
		c.Index = int(col.Data()[i])
	}
	if col, ok := fields.GetColumn(fieldStartTime).(*entity.ColumnDouble); ok {
		c.StartTime = timeFromColumn(col.Data()[i])
	}
	if col, ok := fields.GetColumn(fieldEndTime).(*entity.ColumnDouble); ok {
		c.EndTime = timeFromColumn(col.Data()[i])
	}
	if col, ok := fields.GetColumn(fieldSpeaker).(*entity.ColumnVarChar); ok {
		c.Speaker = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldTextContent).(*entity.ColumnVarChar); ok {
		meta, text := retrieval.DecodeChunkText(col.Data()[i])
		c.Content = text
		c.SegmentIndices = meta.SegmentIndices
		c.TokenCount = meta.TokenCount
	}
	if col, ok := fields.GetColumn(fieldCreatedAt).(*entity.ColumnInt64); ok {
		c.CreatedAt = time.UnixMilli(col.Data()[i]).UTC()
	}
	return c
}

// InsertChunks 按租户分组写入各自分区；未生成向量的 chunk 不落库
func (s *VectorStore) InsertChunks(ctx context.Context, chunks []*domain.SessionChunk) error {
	if err := s.ready(); err != nil {
		return err
	}
	byTenant := make(map[string][]*domain.SessionChunk)
	var tenants []string
	for _, c := range chunks {
		if !c.HasEmbedding() {
			continue
		}
		if c.TenantID == "" {
			return retrieval.ErrTenantRequired
		}
		if _, ok := byTenant[c.TenantID]; !ok {
			tenants = append(tenants, c.TenantID)
		}
		byTenant[c.TenantID] = append(byTenant[c.TenantID], c)
	}
	for _, tenantID := range tenants {
		if err := s.insertTenantChunks(ctx, tenantID, byTenant[tenantID]); err != nil {
			return err
		}
	}
	return nil
}

func (s *VectorStore) insertTenantChunks(ctx context.Context, tenantID string, chunks []*domain.SessionChunk) error {
	ctx, span := tracer.Start(ctx, "milvus.InsertChunks",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.Int("count", len(chunks)),
		))
	defer span.End()

	collName := s.client.Collection()
	partition := PartitionName(tenantID)

	has, err := s.hasPartition(ctx, partition)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !has {
		if err := s.client.milvus.CreatePartition(ctx, collName, partition); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create partition: %w", err)
		}
	}

	n := len(chunks)
	var (
		ids           = make([]string, n)
		vectors       = make([][]float32, n)
		tenantIDs     = make([]string, n)
		sessionIDs    = make([]string, n)
		transcriptIDs = make([]string, n)
		indexes       = make([]int64, n)
		starts        = make([]float64, n)
		ends          = make([]float64, n)
		speakers      = make([]string, n)
		texts         = make([]string, n)
		createdAts    = make([]int64, n)
	)
	for i, c := range chunks {
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("chunk %s embedding dimension %d, want %d", c.ID, len(c.Embedding), s.dimension)
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		ids[i] = c.ID
		vectors[i] = c.Embedding
		tenantIDs[i] = c.TenantID
		sessionIDs[i] = c.SessionID
		transcriptIDs[i] = c.TranscriptID
		indexes[i] = int64(c.Index)
		starts[i] = timeToColumn(c.StartTime)
		ends[i] = timeToColumn(c.EndTime)
		speakers[i] = c.Speaker
		texts[i] = retrieval.EncodeChunkText(retrieval.ChunkMeta{
			SegmentIndices: c.SegmentIndices,
			TokenCount:     c.TokenCount,
		}, c.Content)
		createdAts[i] = created.UnixMilli()
	}

	_, err = s.client.milvus.Insert(ctx, collName, partition,
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, s.dimension, vectors),
		entity.NewColumnVarChar(fieldTenantID, tenantIDs),
		entity.NewColumnVarChar(fieldSessionID, sessionIDs),
		entity.NewColumnVarChar(fieldTranscriptID, transcriptIDs),
		entity.NewColumnInt64(fieldChunkIndex, indexes),
		entity.NewColumnDouble(fieldStartTime, starts),
		entity.NewColumnDouble(fieldEndTime, ends),
		entity.NewColumnVarChar(fieldSpeaker, speakers),
		entity.NewColumnVarChar(fieldTextContent, texts),
		entity.NewColumnInt64(fieldCreatedAt, createdAts),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// DeleteSessionChunks 删除会话的全部 chunk，返回删除前的条数
func (s *VectorStore) DeleteSessionChunks(ctx context.Context, tenantID, sessionID string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteSessionChunks",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("session_id", sessionID),
		))
	defer span.End()

	partition := PartitionName(tenantID)
	has, err := s.hasPartition(ctx, partition)
	if err != nil || !has {
		return 0, err
	}

	expr := sessionExpr(tenantID, sessionID)
	n, err := s.count(ctx, partition, expr)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.client.milvus.Delete(ctx, s.client.Collection(), partition, expr); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return n, nil
}

// CountChunks 租户已索引的 chunk 数
func (s *VectorStore) CountChunks(ctx context.Context, tenantID string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	partition := PartitionName(tenantID)
	has, err := s.hasPartition(ctx, partition)
	if err != nil || !has {
		return 0, err
	}
	return s.count(ctx, partition, tenantExpr(tenantID, nil))
}

func (s *VectorStore) count(ctx context.Context, partition, expr string) (int64, error) {
	rs, err := s.client.milvus.Query(ctx, s.client.Collection(), []string{partition}, expr, []string{countField})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	col, ok := rs.GetColumn(countField).(*entity.ColumnInt64)
	if !ok || len(col.Data()) == 0 {
		return 0, nil
	}
	return col.Data()[0], nil
}

// SessionsWithEmbeddings 租户下已有向量的会话 ID（升序去重）
func (s *VectorStore) SessionsWithEmbeddings(ctx context.Context, tenantID string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.SessionsWithEmbeddings",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	partition := PartitionName(tenantID)
	has, err := s.hasPartition(ctx, partition)
	if err != nil || !has {
		return []string{}, err
	}

	rs, err := s.client.milvus.Query(ctx, s.client.Collection(), []string{partition},
		tenantExpr(tenantID, nil), []string{fieldSessionID})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	col, ok := rs.GetColumn(fieldSessionID).(*entity.ColumnVarChar)
	if !ok {
		return []string{}, nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, id := range col.Data() {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
