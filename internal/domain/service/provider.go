package service

import (
	"context"

	"therapy-chat-api/internal/domain/entity"
)

// EmbeddingProvider 文本向量化能力，部署内维度固定
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// CompletionRequest 一次补全调用的输入
type CompletionRequest struct {
	Messages     []entity.ChatTurn
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Completion 补全结果与 token 用量
type Completion struct {
	Text             string
	Model            string
	Provider         string
	PromptTokens     int
	CompletionTokens int
	FinishReason     string
}

// TotalTokens 合计 token
func (c *Completion) TotalTokens() int {
	if c == nil {
		return 0
	}
	return c.PromptTokens + c.CompletionTokens
}

// CompletionProvider 对话补全能力
type CompletionProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}
