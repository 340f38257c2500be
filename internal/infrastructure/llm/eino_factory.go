// Package llm 提供对话补全模型的创建与调用
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"therapy-chat-api/internal/config"
)

var _ ChatModelFactory = (*EinoFactory)(nil)

// lazyModel 首次使用时创建，创建失败的结果同样被缓存
type lazyModel struct {
	once  sync.Once
	model model.BaseChatModel
	err   error
}

// EinoFactory 按 llm.providers 配置惰性创建 OpenAI 兼容模型，每个提供商只创建一次
type EinoFactory struct {
	defaultName string
	providers   map[string]config.ProviderConfig
	models      map[string]*lazyModel
}

func NewEinoFactory(cfg *config.Config) *EinoFactory {
	f := &EinoFactory{
		defaultName: cfg.LLM.DefaultProvider,
		providers:   cfg.LLM.Providers,
		models:      make(map[string]*lazyModel, len(cfg.LLM.Providers)),
	}
	for name := range cfg.LLM.Providers {
		f.models[name] = &lazyModel{}
	}
	return f
}

func (f *EinoFactory) DefaultProvider() string { return f.defaultName }

func (f *EinoFactory) resolve(name string) string {
	if name == "" {
		return f.defaultName
	}
	return name
}

// ModelName 未配置的提供商返回空串
func (f *EinoFactory) ModelName(name string) string {
	return f.providers[f.resolve(name)].Model
}

// Get name 为空时使用默认提供商
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	name = f.resolve(name)
	lm, ok := f.models[name]
	if !ok {
		return nil, fmt.Errorf("llm provider %q is not configured", name)
	}
	lm.once.Do(func() {
		lm.model, lm.err = openai.NewChatModel(ctx, chatModelConfig(f.providers[name]))
		if lm.err != nil {
			lm.err = fmt.Errorf("create chat model %s: %w", name, lm.err)
		}
	})
	return lm.model, lm.err
}

// chatModelConfig max_tokens 为 0 时交由服务端决定
func chatModelConfig(p config.ProviderConfig) *openai.ChatModelConfig {
	temperature := float32(p.Temperature)
	cfg := &openai.ChatModelConfig{
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		Temperature: &temperature,
		Timeout:     p.Timeout,
	}
	if p.MaxTokens > 0 {
		maxTokens := p.MaxTokens
		cfg.MaxTokens = &maxTokens
	}
	return cfg
}
