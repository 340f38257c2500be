package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/service"
	"therapy-chat-api/pkg/resilience"
)

// ChatModelFactory 按提供商名称获取 ChatModel
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
	ModelName(name string) string
}

// CompletionClient 以 Eino ChatModel 实现补全，单次调用经过重试策略
type CompletionClient struct {
	factory  ChatModelFactory
	provider string
	policy   resilience.Policy
}

func NewCompletionClient(factory ChatModelFactory, provider string, policy resilience.Policy) *CompletionClient {
	return &CompletionClient{factory: factory, provider: strings.TrimSpace(provider), policy: policy}
}

var _ service.CompletionProvider = (*CompletionClient)(nil)

func (c *CompletionClient) Complete(ctx context.Context, req *service.CompletionRequest) (*service.Completion, error) {
	if req == nil {
		return nil, fmt.Errorf("completion request is nil")
	}
	ctx = service.WithProvider(ctx, c.provider)

	chatModel, err := c.factory.Get(ctx, c.provider)
	if err != nil {
		return nil, err
	}

	msgs := formatMessages(req)
	opts := buildModelOptions(req)
	out, err := resilience.Do(ctx, c.policy, "completion", func(ctx context.Context) (*schema.Message, error) {
		return chatModel.Generate(ctx, msgs, opts...)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("empty llm response")
	}

	completion := &service.Completion{
		Text:     strings.TrimSpace(out.Content),
		Model:    c.factory.ModelName(c.provider),
		Provider: c.provider,
	}
	if out.ResponseMeta != nil {
		completion.FinishReason = out.ResponseMeta.FinishReason
		if out.ResponseMeta.Usage != nil {
			completion.PromptTokens = out.ResponseMeta.Usage.PromptTokens
			completion.CompletionTokens = out.ResponseMeta.Usage.CompletionTokens
		}
	}
	return completion, nil
}

func formatMessages(req *service.CompletionRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		msgs = append(msgs, schema.SystemMessage(req.SystemPrompt))
	}
	for _, turn := range req.Messages {
		switch turn.Role {
		case entity.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(turn.Content, nil))
		case entity.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(turn.Content))
		default:
			msgs = append(msgs, schema.UserMessage(turn.Content))
		}
	}
	return msgs
}

func buildModelOptions(req *service.CompletionRequest) []model.Option {
	opts := make([]model.Option, 0, 2)
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(req.Temperature)))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	return opts
}
