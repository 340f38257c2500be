package retrieval

import (
	"context"

	"therapy-chat-api/internal/domain/entity"
)

// VectorStore 定义应用层对“向量存储/检索”的最小依赖（port）。
// 由基础设施层提供具体实现（Milvus、pgvector 或内存）。
//
// 约定：Search 必须在排序之前按 TenantID 过滤候选，未生成向量的 chunk 不参与检索；
// 返回结果按相似度降序，且不超过 TopK。
type VectorStore interface {
	Backend() string
	Search(ctx context.Context, q *VectorQuery) ([]*SearchResult, error)
	InsertChunks(ctx context.Context, chunks []*entity.SessionChunk) error
	DeleteSessionChunks(ctx context.Context, tenantID, sessionID string) (int64, error)
	CountChunks(ctx context.Context, tenantID string) (int64, error)
	SessionsWithEmbeddings(ctx context.Context, tenantID string) ([]string, error)
}

// VectorQuery 向量查询参数
type VectorQuery struct {
	TenantID   string
	Vector     []float32
	TopK       int
	SessionIDs []string
}
