package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"therapy-chat-api/internal/application/quota"
	"therapy-chat-api/internal/interfaces/http/dto"
	"therapy-chat-api/pkg/errors"
	"therapy-chat-api/pkg/logger"
)

// 限流响应头
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// ChatLimiter 对话限流能力
type ChatLimiter interface {
	Limit() int64
	Consume(ctx context.Context, identity string) (*quota.Usage, error)
}

// ChatRateLimit 对话入口限流：每次请求消耗一次配额，超限返回 429。
// 拒绝的计数与日志由限流器记录；计数存储不可用时放行并告警。
func ChatRateLimit(limiter ChatLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		identity := Identity(c)

		usage, err := limiter.Consume(ctx, identity)
		if exceeded, ok := quota.IsRateLimitExceeded(err); ok {
			writeRateLimitHeaders(c, exceeded.Limit, exceeded.Remaining, exceeded.ResetAt)
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(exceeded.ResetIn)))
			dto.AbortWithAppError(c, errors.ErrRateLimited)
			return
		}
		if err != nil {
			logger.Warn(ctx, "rate limit store unavailable, allowing request",
				"identity", identity,
				"error", err.Error(),
			)
			c.Header(HeaderRateLimitLimit, strconv.FormatInt(limiter.Limit(), 10))
			c.Next()
			return
		}

		writeRateLimitHeaders(c, usage.Limit, usage.Remaining, usage.ResetAt)
		c.Next()
	}
}

func writeRateLimitHeaders(c *gin.Context, limit, remaining int64, resetAt time.Time) {
	c.Header(HeaderRateLimitLimit, strconv.FormatInt(limit, 10))
	c.Header(HeaderRateLimitRemaining, strconv.FormatInt(remaining, 10))
	c.Header(HeaderRateLimitReset, strconv.FormatInt(resetAt.Unix(), 10))
}

// retryAfterSeconds 向上取整，至少 1 秒
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
