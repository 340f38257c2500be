package milvus

import (
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionSessionChunks 会话转写 chunk 集合
	CollectionSessionChunks = "session_chunks"

	fieldID           = "id"
	fieldVector       = "vector"
	fieldTenantID     = "tenant_id"
	fieldSessionID    = "session_id"
	fieldTranscriptID = "transcript_id"
	fieldChunkIndex   = "chunk_index"
	fieldStartTime    = "start_time"
	fieldEndTime      = "end_time"
	fieldSpeaker      = "speaker"
	fieldTextContent  = "text_content"
	fieldCreatedAt    = "created_at"

	// noTime 表示 chunk 无时间信息（纯文本切分）
	noTime = -1.0

	idMaxLength      = "64"
	speakerMaxLength = "128"
	textMaxLength    = "65535"
)

var searchOutputFields = []string{
	fieldID, fieldTenantID, fieldSessionID, fieldTranscriptID, fieldChunkIndex,
	fieldStartTime, fieldEndTime, fieldSpeaker, fieldTextContent, fieldCreatedAt,
}

// SessionChunksSchema chunk 集合 Schema
func SessionChunksSchema(collection string, dim int) *entity.Schema {
	varchar := func(name, maxLen string) *entity.Field {
		return &entity.Field{
			Name:       name,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": maxLen},
		}
	}

	id := varchar(fieldID, idMaxLength)
	id.PrimaryKey = true

	return &entity.Schema{
		CollectionName: collection,
		Description:    "Therapy session transcript chunks for semantic search",
		Fields: []*entity.Field{
			id,
			{
				Name:       fieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
			},
			varchar(fieldTenantID, idMaxLength),
			varchar(fieldSessionID, idMaxLength),
			varchar(fieldTranscriptID, idMaxLength),
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: fieldStartTime, DataType: entity.FieldTypeDouble},
			{Name: fieldEndTime, DataType: entity.FieldTypeDouble},
			varchar(fieldSpeaker, speakerMaxLength),
			varchar(fieldTextContent, textMaxLength),
			{Name: fieldCreatedAt, DataType: entity.FieldTypeInt64},
		},
	}
}

// PartitionName 生成租户分区名称。
// Milvus 分区名只允许字母、数字与下划线，其它字符替换为下划线；
// 替换可能让不同租户落入同一分区，因此查询仍需叠加 tenant_id 表达式。
func PartitionName(tenantID string) string {
	var sb strings.Builder
	sb.Grow(len("tenant_") + len(tenantID))
	sb.WriteString("tenant_")
	for _, r := range tenantID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// quote 生成布尔表达式中的字符串字面量
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// tenantExpr 租户过滤表达式，可选限定会话范围
func tenantExpr(tenantID string, sessionIDs []string) string {
	expr := fieldTenantID + " == " + quote(tenantID)
	if len(sessionIDs) == 0 {
		return expr
	}
	quoted := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		quoted = append(quoted, quote(id))
	}
	if len(quoted) == 0 {
		return expr
	}
	return expr + " && " + fieldSessionID + " in [" + strings.Join(quoted, ", ") + "]"
}

// sessionExpr 定位某租户某会话的全部 chunk
func sessionExpr(tenantID, sessionID string) string {
	return fieldTenantID + " == " + quote(tenantID) + " && " + fieldSessionID + " == " + quote(sessionID)
}

func timeToColumn(t *float64) float64 {
	if t == nil {
		return noTime
	}
	return *t
}

func timeFromColumn(v float64) *float64 {
	if v < 0 {
		return nil
	}
	return &v
}
