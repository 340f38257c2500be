package embedding

import (
	"context"
	"fmt"

	"therapy-chat-api/internal/domain/service"
	"therapy-chat-api/pkg/resilience"
)

// Backend 单次向量化请求，不含重试
type Backend interface {
	Name() string
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider 带重试与维度校验的 EmbeddingProvider
type Provider struct {
	backend   Backend
	policy    resilience.Policy
	dimension int
}

// NewProvider dimension <= 0 表示不校验维度
func NewProvider(backend Backend, policy resilience.Policy, dimension int) *Provider {
	return &Provider{backend: backend, policy: policy, dimension: dimension}
}

var _ service.EmbeddingProvider = (*Provider)(nil)

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	ctx = service.WithProvider(ctx, p.backend.Name())

	vecs, err := resilience.Do(ctx, p.policy, "embedding", func(ctx context.Context) ([][]float32, error) {
		return p.backend.EmbedTexts(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d texts", len(vecs), len(texts))
	}
	if p.dimension > 0 {
		for i, v := range vecs {
			if len(v) != p.dimension {
				return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), p.dimension)
			}
		}
	}
	return vecs, nil
}
