package service

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNegativeTokens 上游返回了负数用量
var ErrNegativeTokens = errors.New("token usage must not be negative")

// LLMUsageInput 一次补全调用的用量，由编排层在调用结束后填写
type LLMUsageInput struct {
	TenantID         string
	Workflow         string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Elapsed          time.Duration
}

// Normalize 去除首尾空白，workflow 缺省为 chat
func (in LLMUsageInput) Normalize() LLMUsageInput {
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Workflow = strings.TrimSpace(in.Workflow)
	if in.Workflow == "" {
		in.Workflow = WorkflowChat
	}
	in.Provider = strings.TrimSpace(in.Provider)
	in.Model = strings.TrimSpace(in.Model)
	return in
}

// Validate 校验 token 数
func (in LLMUsageInput) Validate() error {
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return ErrNegativeTokens
	}
	return nil
}

// LLMUsageRecorder 写入用量流水。调用方忽略其错误，实现不应阻塞对话。
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}
