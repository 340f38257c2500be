package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"therapy-chat-api/internal/application/quota"
)

// CounterStore 固定窗口计数：INCR 与 EXPIRE NX 在同一事务中执行，
// 过期时间只在窗口首次计数时设置
type CounterStore struct {
	client *Client
}

func NewCounterStore(client *Client) *CounterStore {
	return &CounterStore{client: client}
}

var _ quota.RateLimitStore = (*CounterStore)(nil)

func (s *CounterStore) IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Incr")
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
	)
	defer span.End()

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, 0, err
	}

	count := incr.Val()
	span.SetAttributes(attribute.Int64("ratelimit.count", count))
	return count, ttl.Val(), nil
}

func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Get")
	span.SetAttributes(attribute.String("ratelimit.key", key))
	defer span.End()

	v, err := s.client.rdb.Get(ctx, key).Int64()
	if IsNil(err) {
		return 0, nil
	}
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return v, nil
}

// TTL key 不存在（-2）或无过期（-1）时返回负值
func (s *CounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.TTL")
	span.SetAttributes(attribute.String("ratelimit.key", key))
	defer span.End()

	d, err := s.client.rdb.PTTL(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return d, nil
}

func (s *CounterStore) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "ratelimit.Reset")
	span.SetAttributes(attribute.String("ratelimit.key", key))
	defer span.End()

	return s.client.rdb.Del(ctx, key).Err()
}
