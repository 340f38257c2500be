package dto

import (
	"time"

	"therapy-chat-api/internal/application/chat"
	"therapy-chat-api/internal/application/quota"
)

// ChatRequest 对话请求
type ChatRequest struct {
	Message        string   `json:"message" binding:"required,max=4000"`
	ConversationID string   `json:"conversation_id,omitempty" binding:"max=64"`
	SessionIDs     []string `json:"session_ids,omitempty" binding:"max=50,dive,required,max=64"`
	TopK           int      `json:"top_k,omitempty" binding:"min=0"`
}

// ChatResponse 对话响应
type ChatResponse struct {
	Text           string        `json:"text"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Sources        []chat.Source `json:"sources"`
	InputAction    string        `json:"input_action"`
	OutputAction   string        `json:"output_action,omitempty"`
	Escalated      bool          `json:"escalated"`
	Usage          *chat.Usage   `json:"usage,omitempty"`
}

func ToChatResponse(r *chat.Response) *ChatResponse {
	if r == nil {
		return nil
	}
	sources := r.Sources
	if sources == nil {
		sources = []chat.Source{}
	}
	return &ChatResponse{
		Text:           r.Text,
		ConversationID: r.ConversationID,
		Sources:        sources,
		InputAction:    string(r.InputAction),
		OutputAction:   string(r.OutputAction),
		Escalated:      r.Escalated,
		Usage:          r.Usage,
	}
}

// ChatUsageResponse 当前窗口的对话配额
type ChatUsageResponse struct {
	Limit     int64  `json:"limit"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
	ResetIn   int64  `json:"reset_in_seconds"`
	ResetAt   string `json:"reset_at,omitempty"`

	// 当日 token 用量，未配置预算时上限为 0
	TokensUsedToday int64 `json:"tokens_used_today"`
	DailyTokenLimit int64 `json:"daily_token_limit"`
}

func ToChatUsageResponse(u *quota.Usage) *ChatUsageResponse {
	if u == nil {
		return nil
	}
	resp := &ChatUsageResponse{
		Limit:     u.Limit,
		Used:      u.Count,
		Remaining: u.Remaining,
		ResetIn:   int64(u.ResetIn / time.Second),
	}
	if !u.ResetAt.IsZero() {
		resp.ResetAt = u.ResetAt.UTC().Format(time.RFC3339)
	}
	return resp
}
