package retrieval

import "therapy-chat-api/internal/domain/entity"

// SearchParams 检索输入
type SearchParams struct {
	TenantID    string
	QueryVector []float32
	TopK        int

	// MinScore 在 TopK 截断之后过滤，<= 0 表示不过滤
	MinScore float64

	// SessionIDs 为空表示检索该租户全部会话
	SessionIDs []string
}

// SearchResult chunk 与 [0,1] 区间的余弦相似度，仅在同一租户内比较
type SearchResult struct {
	Chunk *entity.SessionChunk
	Score float64
}

// ClampScore 将相似度收敛到 [0,1]
func ClampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
