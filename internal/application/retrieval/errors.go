package retrieval

import "errors"

var (
	// ErrVectorDisabled 表示向量检索/索引能力未配置（向量库或 Embedder 不可用）。
	ErrVectorDisabled = errors.New("vector retrieval is disabled")
	// ErrTenantRequired 检索与索引都必须携带租户
	ErrTenantRequired = errors.New("tenant_id is required")
	// ErrTopKTooLarge top_k 超过配置上限
	ErrTopKTooLarge = errors.New("top_k exceeds limit")
	// ErrEmptyQueryVector 查询向量为空
	ErrEmptyQueryVector = errors.New("query vector is empty")
	// ErrEmbeddingCountMismatch 向量数量与 chunk 数量不一致
	ErrEmbeddingCountMismatch = errors.New("embedding count does not match chunk count")
	// ErrSessionNotFound 会话不存在或不属于该租户
	ErrSessionNotFound = errors.New("session not found")
	// ErrTranscriptNotFound 会话尚无转写结果
	ErrTranscriptNotFound = errors.New("transcript not found")
)
