package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"therapy-chat-api/internal/application/chunking"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/service"
	"therapy-chat-api/pkg/logger"
	"therapy-chat-api/pkg/metrics"
)

const defaultEmbeddingBatch = 32

// IndexResult 一次转写索引的结果
type IndexResult struct {
	SessionID    string
	TranscriptID string
	Deleted      int64
	Chunks       int
}

// Indexer 切分转写、批量生成向量并写入向量库
type Indexer struct {
	chunker  *chunking.Chunker
	embedder service.EmbeddingProvider
	vector   VectorStore

	embeddingBatchSize int
	newID              func() string
	now                func() time.Time
}

func NewIndexer(chunker *chunking.Chunker, embedder service.EmbeddingProvider, vectorStore VectorStore, embeddingBatchSize int) *Indexer {
	bs := embeddingBatchSize
	if bs <= 0 {
		bs = defaultEmbeddingBatch
	}
	if chunker == nil {
		chunker = chunking.New(chunking.DefaultConfig())
	}
	return &Indexer{
		chunker:            chunker,
		embedder:           embedder,
		vector:             vectorStore,
		embeddingBatchSize: bs,
		newID:              uuid.NewString,
		now:                time.Now,
	}
}

func (i *Indexer) Enabled() bool {
	return i != nil && i.embedder != nil && i.vector != nil
}

// IndexTranscript 重新索引会话转写：先删除旧 chunk，再整体写入新 chunk
func (i *Indexer) IndexTranscript(ctx context.Context, tenantID string, transcript *entity.Transcript) (*IndexResult, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if transcript == nil {
		return nil, fmt.Errorf("transcript is nil")
	}
	if strings.TrimSpace(transcript.SessionID) == "" {
		return nil, fmt.Errorf("transcript.session_id is required")
	}
	if !i.Enabled() {
		return nil, ErrVectorDisabled
	}

	res := &IndexResult{SessionID: transcript.SessionID, TranscriptID: transcript.ID}

	deleted, err := i.vector.DeleteSessionChunks(ctx, tenantID, transcript.SessionID)
	if err != nil {
		return nil, fmt.Errorf("delete existing chunks: %w", err)
	}
	res.Deleted = deleted
	if deleted > 0 {
		logger.Info(ctx, "deleted existing chunks", "session_id", transcript.SessionID, "count", deleted)
	}

	chunks := i.chunker.Chunk(transcript.FullText, transcript.Segments)
	if len(chunks) == 0 {
		// 空转写只清理旧分片
		logger.Warn(ctx, "no chunks generated for transcript", "transcript_id", transcript.ID)
		return res, nil
	}

	texts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		texts = append(texts, ch.Content)
	}
	vectors, err := i.embedBatch(ctx, texts)
	if err != nil {
		metrics.IndexedChunksTotal.WithLabelValues("error").Add(float64(len(chunks)))
		return nil, err
	}

	now := i.now().UTC()
	records := make([]*entity.SessionChunk, 0, len(chunks))
	for idx, ch := range chunks {
		records = append(records, &entity.SessionChunk{
			ID:           i.newID(),
			TenantID:     tenantID,
			SessionID:    transcript.SessionID,
			TranscriptID: transcript.ID,
			Chunk:        ch,
			Embedding:    vectors[idx],
			CreatedAt:    now,
		})
	}
	if err := i.vector.InsertChunks(ctx, records); err != nil {
		metrics.IndexedChunksTotal.WithLabelValues("error").Add(float64(len(records)))
		return nil, fmt.Errorf("insert chunks: %w", err)
	}
	metrics.IndexedChunksTotal.WithLabelValues("success").Add(float64(len(records)))

	res.Chunks = len(records)
	logger.Info(ctx, "transcript indexed",
		"session_id", transcript.SessionID,
		"transcript_id", transcript.ID,
		"chunks", res.Chunks,
	)
	return res, nil
}

func (i *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if i == nil || i.embedder == nil {
		return nil, ErrVectorDisabled
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += i.embeddingBatchSize {
		end := start + i.embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := i.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrEmbeddingCountMismatch, len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
