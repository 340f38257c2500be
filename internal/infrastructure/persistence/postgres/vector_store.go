package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/domain/entity"
)

const pgvectorBackend = "pgvector"

// VectorStore 基于 pgvector 的 chunk 向量存储，余弦距离 <=> 换算为相似度
type VectorStore struct {
	client    *Client
	dimension int
}

func NewVectorStore(client *Client, dimension int) *VectorStore {
	return &VectorStore{client: client, dimension: dimension}
}

var _ retrieval.VectorStore = (*VectorStore)(nil)

func (s *VectorStore) Backend() string { return pgvectorBackend }

// EnsureSchema 创建扩展、表与 HNSW 索引（幂等）
func (s *VectorStore) EnsureSchema(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.VectorStore.EnsureSchema")
	defer span.End()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS session_chunks (
			id              VARCHAR(64) PRIMARY KEY,
			tenant_id       VARCHAR(64) NOT NULL,
			session_id      VARCHAR(64) NOT NULL,
			transcript_id   VARCHAR(64) NOT NULL DEFAULT '',
			chunk_index     INTEGER NOT NULL,
			content         TEXT NOT NULL,
			start_time      DOUBLE PRECISION,
			end_time        DOUBLE PRECISION,
			speaker         VARCHAR(128) NOT NULL DEFAULT '',
			segment_indices BIGINT[] NOT NULL DEFAULT '{}',
			token_count     INTEGER NOT NULL DEFAULT 0,
			embedding       vector(%d),
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_session_chunks_tenant_session ON session_chunks (tenant_id, session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_session_chunks_embedding ON session_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	db := getDB(ctx, s.client.db)
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to ensure vector schema: %w", err)
		}
	}
	return nil
}

type chunkRow struct {
	ID             string
	TenantID       string
	SessionID      string
	TranscriptID   string
	ChunkIndex     int
	Content        string
	StartTime      sql.NullFloat64
	EndTime        sql.NullFloat64
	Speaker        string
	SegmentIndices pq.Int64Array
	TokenCount     int
	CreatedAt      time.Time
	Score          float64
}

func (r *chunkRow) toEntity() *entity.SessionChunk {
	c := &entity.SessionChunk{
		ID:           r.ID,
		TenantID:     r.TenantID,
		SessionID:    r.SessionID,
		TranscriptID: r.TranscriptID,
		CreatedAt:    r.CreatedAt,
	}
	c.Index = r.ChunkIndex
	c.Content = r.Content
	c.Speaker = r.Speaker
	c.TokenCount = r.TokenCount
	if r.StartTime.Valid {
		v := r.StartTime.Float64
		c.StartTime = &v
	}
	if r.EndTime.Valid {
		v := r.EndTime.Float64
		c.EndTime = &v
	}
	if r.SegmentIndices != nil {
		c.SegmentIndices = make([]int, len(r.SegmentIndices))
		for i, v := range r.SegmentIndices {
			c.SegmentIndices[i] = int(v)
		}
	}
	return c
}

// Search 候选先按租户和会话过滤，再按余弦距离排序
func (s *VectorStore) Search(ctx context.Context, q *retrieval.VectorQuery) ([]*retrieval.SearchResult, error) {
	if q == nil || q.TenantID == "" {
		return nil, retrieval.ErrTenantRequired
	}
	ctx, span := tracer.Start(ctx, "postgres.VectorStore.Search",
		trace.WithAttributes(
			attribute.String("tenant_id", q.TenantID),
			attribute.Int("top_k", q.TopK),
		))
	defer span.End()

	if q.TopK <= 0 {
		return []*retrieval.SearchResult{}, nil
	}

	vec := vectorLiteral(q.Vector)
	where := "tenant_id = ? AND embedding IS NOT NULL"
	args := []interface{}{vec, q.TenantID}
	if scope := nonBlank(q.SessionIDs); len(scope) > 0 {
		where += " AND session_id = ANY(?)"
		args = append(args, pq.Array(scope))
	}
	args = append(args, vec, q.TopK)

	sqlText := `SELECT id, tenant_id, session_id, transcript_id, chunk_index, content,
		start_time, end_time, speaker, segment_indices, token_count, created_at,
		1 - (embedding <=> ?::vector) AS score
		FROM session_chunks
		WHERE ` + where + `
		ORDER BY embedding <=> ?::vector, id
		LIMIT ?`

	var rows []chunkRow
	if err := getDB(ctx, s.client.db).Raw(sqlText, args...).Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	out := make([]*retrieval.SearchResult, 0, len(rows))
	for i := range rows {
		out = append(out, &retrieval.SearchResult{
			Chunk: rows[i].toEntity(),
			Score: retrieval.ClampScore(rows[i].Score),
		})
	}
	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// InsertChunks 在一个事务内写入；ID 已存在的 chunk 保持不变
func (s *VectorStore) InsertChunks(ctx context.Context, chunks []*entity.SessionChunk) error {
	ctx, span := tracer.Start(ctx, "postgres.VectorStore.InsertChunks",
		trace.WithAttributes(attribute.Int("count", len(chunks))))
	defer span.End()

	const stmt = `INSERT INTO session_chunks
		(id, tenant_id, session_id, transcript_id, chunk_index, content, start_time, end_time,
		 speaker, segment_indices, token_count, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?::vector, ?)
		ON CONFLICT (id) DO NOTHING`

	err := getDB(ctx, s.client.db).Transaction(func(tx *gorm.DB) error {
		for _, c := range chunks {
			if c == nil {
				continue
			}
			if c.TenantID == "" {
				return retrieval.ErrTenantRequired
			}
			var embedding interface{}
			if c.HasEmbedding() {
				if len(c.Embedding) != s.dimension {
					return fmt.Errorf("chunk %s embedding dimension %d, want %d", c.ID, len(c.Embedding), s.dimension)
				}
				embedding = vectorLiteral(c.Embedding)
			}
			created := c.CreatedAt
			if created.IsZero() {
				created = time.Now()
			}
			if err := tx.Exec(stmt,
				c.ID, c.TenantID, c.SessionID, c.TranscriptID, c.Index, c.Content,
				nullFloat(c.StartTime), nullFloat(c.EndTime), c.Speaker,
				pq.Array(toInt64s(c.SegmentIndices)), c.TokenCount, embedding, created,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

func (s *VectorStore) DeleteSessionChunks(ctx context.Context, tenantID, sessionID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.VectorStore.DeleteSessionChunks")
	defer span.End()

	res := getDB(ctx, s.client.db).Exec(`DELETE FROM session_chunks WHERE tenant_id = ? AND session_id = ?`, tenantID, sessionID)
	if res.Error != nil {
		span.RecordError(res.Error)
		return 0, fmt.Errorf("failed to delete chunks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *VectorStore) CountChunks(ctx context.Context, tenantID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.VectorStore.CountChunks")
	defer span.End()

	var n int64
	err := getDB(ctx, s.client.db).
		Raw(`SELECT COUNT(*) FROM session_chunks WHERE tenant_id = ? AND embedding IS NOT NULL`, tenantID).
		Scan(&n).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *VectorStore) SessionsWithEmbeddings(ctx context.Context, tenantID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.VectorStore.SessionsWithEmbeddings")
	defer span.End()

	ids := make([]string, 0)
	err := getDB(ctx, s.client.db).
		Raw(`SELECT DISTINCT session_id FROM session_chunks
			WHERE tenant_id = ? AND embedding IS NOT NULL
			ORDER BY session_id`, tenantID).
		Scan(&ids).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// vectorLiteral pgvector 文本格式：[0.1,0.2,...]
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v)*8 + 2)
	sb.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func toInt64s(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func nonBlank(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
