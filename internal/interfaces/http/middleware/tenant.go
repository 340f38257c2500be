package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"therapy-chat-api/internal/interfaces/http/dto"
	"therapy-chat-api/pkg/errors"
	"therapy-chat-api/pkg/logger"
)

const (
	// TenantHeader 租户 ID 头
	TenantHeader = "X-Tenant-ID"
	// UserHeader 调用方身份头，用于按用户限流
	UserHeader = "X-User-ID"

	maxIdentityLen = 64
)

// TenantConfig 租户中间件配置
type TenantConfig struct {
	// DefaultTenantID 请求未携带租户时的缺省值（仅开发环境）
	DefaultTenantID string
}

// Tenant 解析租户与调用方身份；缺少租户时返回 400
func Tenant(cfg TenantConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenantID == "" {
			tenantID = cfg.DefaultTenantID
		}
		if tenantID == "" {
			dto.AbortWithAppError(c, errors.ErrTenantMissing)
			return
		}
		if len(tenantID) > maxIdentityLen {
			dto.AbortWithAppError(c, errors.ErrInvalidParam.WithDetail("tenant id too long"))
			return
		}

		userID := strings.TrimSpace(c.GetHeader(UserHeader))
		if len(userID) > maxIdentityLen {
			dto.AbortWithAppError(c, errors.ErrInvalidParam.WithDetail("user id too long"))
			return
		}

		c.Set("tenant_id", tenantID)
		ctx := logger.WithContext(c.Request.Context(), logger.TenantIDKey, tenantID)
		if userID != "" {
			c.Set("user_id", userID)
			ctx = logger.WithContext(ctx, logger.UserIDKey, userID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetTenantID 从 gin context 获取租户 ID
func GetTenantID(c *gin.Context) string {
	return c.GetString("tenant_id")
}

// GetUserID 从 gin context 获取调用方 ID
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// Identity 限流身份：优先用户，其次租户
func Identity(c *gin.Context) string {
	if userID := GetUserID(c); userID != "" {
		return GetTenantID(c) + ":" + userID
	}
	return GetTenantID(c)
}
