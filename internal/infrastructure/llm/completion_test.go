package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"therapy-chat-api/internal/config"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/service"
	"therapy-chat-api/pkg/resilience"
)

type scriptedModel struct {
	errs  []error
	calls int
	seen  []*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls++
	m.seen = in
	if m.calls <= len(m.errs) {
		return nil, m.errs[m.calls-1]
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: " I hear you. ",
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 50, CompletionTokens: 5, TotalTokens: 55},
		},
	}, nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

type staticFactory struct{ m model.BaseChatModel }

func (f staticFactory) Get(context.Context, string) (model.BaseChatModel, error) { return f.m, nil }
func (f staticFactory) ModelName(string) string                                  { return "gpt-test" }

func TestCompletionClient_RetriesRateLimit(t *testing.T) {
	m := &scriptedModel{errs: []error{errors.New("error, status code: 429, message: Rate limit reached")}}
	c := NewCompletionClient(staticFactory{m}, "openai", resilience.Policy{MaxRetries: 3, BaseDelay: time.Millisecond})

	out, err := c.Complete(context.Background(), &service.CompletionRequest{
		SystemPrompt: "system",
		Messages: []entity.ChatTurn{
			{Role: entity.RoleUser, Content: "hi"},
			{Role: entity.RoleAssistant, Content: "hello"},
			{Role: entity.RoleUser, Content: "how are you?"},
		},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if m.calls != 2 {
		t.Fatalf("calls=%d, want 2", m.calls)
	}
	if out.Text != "I hear you." || out.PromptTokens != 50 || out.Model != "gpt-test" || out.FinishReason != "stop" {
		t.Fatalf("out=%+v", out)
	}
	if len(m.seen) != 4 || m.seen[0].Role != schema.System || m.seen[2].Role != schema.Assistant {
		t.Fatalf("messages=%+v", m.seen)
	}
}

func TestCompletionClient_PermanentError(t *testing.T) {
	m := &scriptedModel{errs: []error{errors.New("invalid api key")}}
	c := NewCompletionClient(staticFactory{m}, "openai", resilience.Policy{MaxRetries: 3, BaseDelay: time.Millisecond})
	_, err := c.Complete(context.Background(), &service.CompletionRequest{Messages: []entity.ChatTurn{{Role: entity.RoleUser, Content: "hi"}}})
	if pe, ok := resilience.AsProviderError(err); !ok || pe.Retryable || m.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, m.calls)
	}
}

func TestEinoFactory_UnknownProvider(t *testing.T) {
	f := NewEinoFactory(&config.Config{LLM: config.LLMConfig{
		DefaultProvider: "openai",
		Providers:       map[string]config.ProviderConfig{"openai": {Model: "gpt-4o-mini"}},
	}})
	if f.ModelName("") != "gpt-4o-mini" || f.ModelName("missing") != "" {
		t.Fatalf("model names")
	}
	if _, err := f.Get(context.Background(), "missing"); err == nil {
		t.Fatalf("want error for unconfigured provider")
	}
}

func TestChatModelConfig(t *testing.T) {
	cfg := chatModelConfig(config.ProviderConfig{Model: "m", Temperature: 0.5})
	if cfg.MaxTokens != nil || cfg.Temperature == nil || *cfg.Temperature != 0.5 {
		t.Fatalf("cfg=%+v", cfg)
	}
	cfg = chatModelConfig(config.ProviderConfig{MaxTokens: 256})
	if cfg.MaxTokens == nil || *cfg.MaxTokens != 256 {
		t.Fatalf("max tokens not set")
	}
}
