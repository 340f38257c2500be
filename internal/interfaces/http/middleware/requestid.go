// Package middleware 提供 HTTP 中间件
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"therapy-chat-api/pkg/logger"
)

// RequestIDHeader 请求 ID 头，响应中原样回写
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// acceptRequestID 只接受可打印 ASCII，其余情况由服务端生成，日志中不会出现换行等控制字符
func acceptRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// RequestID 为每个请求确定 request_id 并写入日志上下文
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !acceptRequestID(id) {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(
			logger.WithContext(c.Request.Context(), logger.RequestIDKey, id),
		)
		c.Next()
	}
}
