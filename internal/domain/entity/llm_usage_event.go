package entity

import "time"

// LLMUsageEvent 补全调用的 token 流水，按租户与 UTC 日汇总用于每日预算
type LLMUsageEvent struct {
	ID               string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID         string    `json:"tenant_id" gorm:"type:varchar(64);not null;index:idx_llm_usage_tenant_time,priority:1"`
	Workflow         string    `json:"workflow" gorm:"type:varchar(32);not null"`
	Provider         string    `json:"provider" gorm:"type:varchar(32)"`
	Model            string    `json:"model" gorm:"type:varchar(64)"`
	TokensPrompt     int       `json:"tokens_prompt" gorm:"not null;default:0"`
	TokensCompletion int       `json:"tokens_completion" gorm:"not null;default:0"`
	DurationMs       int       `json:"duration_ms" gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime;index:idx_llm_usage_tenant_time,priority:2"`
}

// TableName 指定表名
func (LLMUsageEvent) TableName() string { return "llm_usage_events" }

// NewLLMUsageEvent 创建用量流水；负数 token 按 0 计
func NewLLMUsageEvent(tenantID, workflow, provider, model string, prompt, completion int, elapsed time.Duration) *LLMUsageEvent {
	return &LLMUsageEvent{
		TenantID:         tenantID,
		Workflow:         workflow,
		Provider:         provider,
		Model:            model,
		TokensPrompt:     max(prompt, 0),
		TokensCompletion: max(completion, 0),
		DurationMs:       int(elapsed.Milliseconds()),
	}
}

// TotalTokens 该次调用计入预算的 token 数
func (e *LLMUsageEvent) TotalTokens() int {
	return e.TokensPrompt + e.TokensCompletion
}
