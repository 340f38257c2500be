// Package entity 定义领域实体
package entity

import "time"

// Chunk 检索单元：由若干连续片段组成，创建后不再修改，重新切分时整体替换
type Chunk struct {
	Index          int      `json:"chunk_index"`
	Content        string   `json:"content"`
	StartTime      *float64 `json:"start_time,omitempty"`
	EndTime        *float64 `json:"end_time,omitempty"`
	Speaker        string   `json:"speaker,omitempty"`
	SegmentIndices []int    `json:"segment_indices"`
	TokenCount     int      `json:"token_count"`
}

// SessionChunk 带归属信息与向量的检索单元
type SessionChunk struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	SessionID    string    `json:"session_id"`
	TranscriptID string    `json:"transcript_id"`
	Chunk                  // 切分结果
	Embedding    []float32 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasEmbedding 是否已生成向量
func (c *SessionChunk) HasEmbedding() bool {
	return c != nil && len(c.Embedding) > 0
}
