package router

import (
	"github.com/gin-gonic/gin"

	"therapy-chat-api/internal/interfaces/http/middleware"
)

// RegisterV1Routes 注册 v1 版本路由，调用方已挂载租户中间件
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers, limiter middleware.ChatLimiter) {
	if h.Chat != nil {
		chat := v1.Group("/chat")
		{
			chat.POST("", middleware.ChatRateLimit(limiter), h.Chat.Chat)
			chat.GET("/usage", h.Chat.Usage)
		}

		v1.GET("/conversations/:cid", h.Chat.GetConversation)
	}

	if h.Retrieval != nil {
		sessions := v1.Group("/sessions")
		{
			sessions.POST("/:sid/search", h.Retrieval.SearchSession)
			sessions.POST("/:sid/embeddings", h.Retrieval.EnqueueEmbeddings)
		}

		v1.GET("/retrieval/stats", h.Retrieval.Stats)
	}
}
