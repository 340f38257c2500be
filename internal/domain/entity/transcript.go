// Package entity 定义领域实体
package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Segment 转写片段，由外部转写服务产出，创建后不可变
type Segment struct {
	Text       string   `json:"text"`
	Start      float64  `json:"start_time"`
	End        float64  `json:"end_time"`
	Speaker    string   `json:"speaker,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Segments 以 jsonb 形式持久化的片段列表
type Segments []Segment

// Value 实现 driver.Valuer
func (s Segments) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner
func (s *Segments) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported segments source %T", src)
	}
	return json.Unmarshal(raw, s)
}

// Transcript 会话转写结果
type Transcript struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID string    `json:"session_id" gorm:"type:uuid;uniqueIndex;not null"`
	FullText  string    `json:"full_text" gorm:"type:text;not null"`
	Segments  Segments  `json:"segments" gorm:"type:jsonb"`
	Language  string    `json:"language,omitempty" gorm:"type:varchar(16)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Transcript) TableName() string {
	return "transcripts"
}
