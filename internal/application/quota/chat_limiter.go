package quota

import (
	"context"
	"time"
)

const (
	// ScopeChat 对话入口的限流域
	ScopeChat = "chat"

	chatWindow = time.Hour
)

// ChatRateLimiter 每个身份每小时的对话次数上限
type ChatRateLimiter struct {
	limiter    *RateLimiter
	maxPerHour int64
}

func NewChatRateLimiter(limiter *RateLimiter, maxPerHour int) *ChatRateLimiter {
	if maxPerHour <= 0 {
		maxPerHour = 60
	}
	return &ChatRateLimiter{limiter: limiter, maxPerHour: int64(maxPerHour)}
}

// Limit 每小时上限
func (c *ChatRateLimiter) Limit() int64 {
	return c.maxPerHour
}

// Consume 消耗一次对话配额
func (c *ChatRateLimiter) Consume(ctx context.Context, identity string) (*Usage, error) {
	return c.limiter.CheckAndConsume(ctx, ScopeChat, identity, c.maxPerHour, chatWindow)
}

// Usage 查询剩余对话次数
func (c *ChatRateLimiter) Usage(ctx context.Context, identity string) (*Usage, error) {
	return c.limiter.GetUsage(ctx, ScopeChat, identity, c.maxPerHour, chatWindow)
}

// Reset 清除身份的对话计数
func (c *ChatRateLimiter) Reset(ctx context.Context, identity string) error {
	return c.limiter.Reset(ctx, ScopeChat, identity)
}
