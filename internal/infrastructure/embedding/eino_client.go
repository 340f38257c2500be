package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"therapy-chat-api/internal/config"
)

// EinoBackend 基于 Eino OpenAI 适配器的向量化后端
type EinoBackend struct {
	embedder embedding.Embedder
}

// NewEinoEmbedder 创建基于 Eino 的 Embedder
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.APIKey == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding api_key or endpoint is required")
	}

	// 使用 Eino 的 OpenAI 适配器
	embedder, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}

	return embedder, nil
}

// NewEinoBackend 包装 Eino Embedder
func NewEinoBackend(embedder embedding.Embedder) *EinoBackend {
	return &EinoBackend{embedder: embedder}
}

var _ Backend = (*EinoBackend)(nil)

func (b *EinoBackend) Name() string { return "openai" }

// EmbedTexts Eino 返回 float64 向量，向量库统一使用 float32
func (b *EinoBackend) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := b.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		f := make([]float32, len(v))
		for j, x := range v {
			f[j] = float32(x)
		}
		out[i] = f
	}
	return out, nil
}
