package retrieval

import (
	"encoding/json"
	"strings"
)

const chunkMetaPrefix = "@@meta:"

// ChunkMeta 随 chunk 正文一起写入向量库的结构化信息。
// 约定：仅用于读写自家写入的 chunk；不存在时应安全降级。
type ChunkMeta struct {
	SegmentIndices []int `json:"segment_indices,omitempty"`
	TokenCount     int   `json:"token_count,omitempty"`
}

// EncodeChunkText 将元信息以前缀行的形式拼接到正文前
func EncodeChunkText(meta ChunkMeta, text string) string {
	b, _ := json.Marshal(meta)
	var sb strings.Builder
	sb.Grow(len(chunkMetaPrefix) + len(b) + 1 + len(text))
	sb.WriteString(chunkMetaPrefix)
	sb.Write(b)
	sb.WriteByte('\n')
	sb.WriteString(text)
	return sb.String()
}

// DecodeChunkText 拆出元信息与正文；无前缀时原样返回正文
func DecodeChunkText(textContent string) (ChunkMeta, string) {
	if !strings.HasPrefix(textContent, chunkMetaPrefix) {
		return ChunkMeta{}, textContent
	}
	rest := strings.TrimPrefix(textContent, chunkMetaPrefix)
	line, body, ok := strings.Cut(rest, "\n")
	if !ok {
		return ChunkMeta{}, textContent
	}
	var meta ChunkMeta
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &meta); err != nil {
		return ChunkMeta{}, body
	}
	return meta, body
}
