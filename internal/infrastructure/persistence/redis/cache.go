package redis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"therapy-chat-api/pkg/logger"
	"therapy-chat-api/pkg/metrics"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache 字节级读穿缓存。值的编码由调用方决定。
type Cache struct {
	client *Client
	flight singleflight.Group
}

func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// GetOrLoad 未命中时调用 load 并回写；同一 key 的并发未命中只加载一次。
// Redis 故障时降级为直接加载。
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoad",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	cached, err := c.client.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	case !IsNil(err):
		span.RecordError(err)
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		logger.Warn(ctx, "cache unavailable, loading directly", "key", key, "error", err.Error())
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// 共享加载不随单个调用方取消，但保留发起方的截止时间，避免重试越过请求期限
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := detachedContext(ctx)
		defer cancel()
		data, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if setErr := c.client.rdb.Set(loadCtx, key, data, ttl).Err(); setErr != nil {
			logger.Warn(loadCtx, "cache write failed", "key", key, "error", setErr.Error())
		}
		return data, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return nil, ctx.Err()
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		return nil, res.Err
	}
	v, shared := res.Val, res.Shared

	if shared {
		metrics.CacheLookupsTotal.WithLabelValues("shared").Inc()
	} else {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	return v.([]byte), nil
}

func detachedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	return base, func() {}
}
