package dto

import (
	"therapy-chat-api/internal/application/retrieval"
)

// SessionSearchRequest 单会话检索请求
type SessionSearchRequest struct {
	Query string `json:"query" binding:"required,max=2000"`
	TopK  int    `json:"top_k,omitempty" binding:"min=0"`
}

// SearchHit 检索命中；检索接口面向内部工具，返回完整正文
type SearchHit struct {
	ChunkID    string   `json:"chunk_id"`
	SessionID  string   `json:"session_id"`
	ChunkIndex int      `json:"chunk_index"`
	Content    string   `json:"content"`
	Score      float64  `json:"score"`
	StartTime  *float64 `json:"start_time,omitempty"`
	EndTime    *float64 `json:"end_time,omitempty"`
	Speaker    string   `json:"speaker,omitempty"`
}

// SessionSearchResponse 单会话检索响应
type SessionSearchResponse struct {
	SessionID string       `json:"session_id"`
	Results   []*SearchHit `json:"results"`
}

func ToSessionSearchResponse(sessionID string, results []*retrieval.SearchResult) *SessionSearchResponse {
	out := &SessionSearchResponse{
		SessionID: sessionID,
		Results:   make([]*SearchHit, 0, len(results)),
	}
	for _, r := range results {
		if r == nil || r.Chunk == nil {
			continue
		}
		out.Results = append(out.Results, &SearchHit{
			ChunkID:    r.Chunk.ID,
			SessionID:  r.Chunk.SessionID,
			ChunkIndex: r.Chunk.Index,
			Content:    r.Chunk.Content,
			Score:      r.Score,
			StartTime:  r.Chunk.StartTime,
			EndTime:    r.Chunk.EndTime,
			Speaker:    r.Chunk.Speaker,
		})
	}
	return out
}

// EmbeddingJobResponse 向量化任务已入队
type EmbeddingJobResponse struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// RetrievalStatsResponse 租户的检索索引统计
type RetrievalStatsResponse struct {
	Backend                string   `json:"backend"`
	ChunkCount             int64    `json:"chunk_count"`
	SessionsWithEmbeddings []string `json:"sessions_with_embeddings"`
}
