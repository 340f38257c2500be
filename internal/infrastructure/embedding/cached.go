package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"therapy-chat-api/internal/domain/service"
	"therapy-chat-api/pkg/logger"
)

// Cache 读穿缓存端口，由 Redis 实现
type Cache interface {
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error)
}

// CachedProvider 缓存单条查询向量；批量向量化（索引）不经过缓存
type CachedProvider struct {
	next  service.EmbeddingProvider
	cache Cache
	model string
	ttl   time.Duration
}

func NewCachedProvider(next service.EmbeddingProvider, cache Cache, model string, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedProvider{next: next, cache: cache, model: model, ttl: ttl}
}

var _ service.EmbeddingProvider = (*CachedProvider)(nil)

// CacheKey 键包含模型名，换模型后不会命中旧向量
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + model + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cache == nil {
		return c.next.Embed(ctx, text)
	}

	var vec []float32
	raw, err := c.cache.GetOrLoad(ctx, CacheKey(c.model, text), c.ttl, func(ctx context.Context) ([]byte, error) {
		vec, err := c.next.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(vec)
	})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) == 0 {
		logger.Warn(ctx, "discarding undecodable cached embedding")
		return c.next.Embed(ctx, text)
	}
	return vec, nil
}

func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedBatch(ctx, texts)
}
