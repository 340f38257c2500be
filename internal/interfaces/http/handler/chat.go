package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"therapy-chat-api/internal/application/chat"
	"therapy-chat-api/internal/application/quota"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
	"therapy-chat-api/internal/interfaces/http/dto"
	"therapy-chat-api/internal/interfaces/http/middleware"
	apperrors "therapy-chat-api/pkg/errors"
	"therapy-chat-api/pkg/logger"
)

// ChatService 对话编排能力
type ChatService interface {
	Chat(ctx context.Context, req *chat.Request) (*chat.Response, error)
	History(ctx context.Context, tenantID, conversationID string, p repository.Pagination) (*entity.Conversation, *repository.PagedResult[*entity.ConversationMessage], error)
}

// UsageReader 查询对话配额
type UsageReader interface {
	Usage(ctx context.Context, identity string) (*quota.Usage, error)
}

// TokenBudget 租户当日 token 预算
type TokenBudget interface {
	CheckDailyTokens(ctx context.Context, tenantID string) (used int64, max int64, err error)
	DailyUsage(ctx context.Context, tenantID string) (used int64, max int64, err error)
}

// ChatHandler 对话处理器
type ChatHandler struct {
	chat   ChatService
	usage  UsageReader
	budget TokenBudget
}

// NewChatHandler usage 与 budget 可为 nil
func NewChatHandler(chatSvc ChatService, usage UsageReader, budget TokenBudget) *ChatHandler {
	return &ChatHandler{chat: chatSvc, usage: usage, budget: budget}
}

// Chat 单轮对话
// @Summary 发送对话消息
// @Tags Chat
// @Accept json
// @Produce json
// @Param body body dto.ChatRequest true "对话请求"
// @Success 200 {object} dto.Response[dto.ChatResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.AppError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return
	}
	tenantID := middleware.GetTenantID(c)
	if !h.checkBudget(c, tenantID) {
		return
	}

	resp, err := h.chat.Chat(c.Request.Context(), &chat.Request{
		TenantID:       tenantID,
		UserID:         middleware.GetUserID(c),
		ConversationID: req.ConversationID,
		Message:        req.Message,
		TopK:           req.TopK,
		SessionIDs:     req.SessionIDs,
	})
	if err != nil {
		writeError(c, "chat turn failed", err)
		return
	}
	dto.Success(c, dto.ToChatResponse(resp))
}

// Usage 当前身份在本窗口内的对话配额
// @Summary 查询对话配额
// @Tags Chat
// @Produce json
// @Success 200 {object} dto.Response[dto.ChatUsageResponse]
// @Router /v1/chat/usage [get]
func (h *ChatHandler) Usage(c *gin.Context) {
	if h.usage == nil {
		dto.AppError(c, apperrors.ErrServiceUnavailable)
		return
	}
	ctx := c.Request.Context()
	usage, err := h.usage.Usage(ctx, middleware.Identity(c))
	if err != nil {
		writeError(c, "get chat usage failed", apperrors.Wrap(err, apperrors.CodeCacheError, "rate limit store unavailable"))
		return
	}
	resp := dto.ToChatUsageResponse(usage)
	if h.budget != nil {
		used, max, err := h.budget.DailyUsage(ctx, middleware.GetTenantID(c))
		if err != nil {
			logger.Warn(ctx, "read daily token usage failed", "error", err.Error())
		} else {
			resp.TokensUsedToday = used
			resp.DailyTokenLimit = max
		}
	}
	dto.Success(c, resp)
}

// checkBudget 超出当日 token 预算时写入 429；读取失败时放行
func (h *ChatHandler) checkBudget(c *gin.Context, tenantID string) bool {
	if h.budget == nil {
		return true
	}
	ctx := c.Request.Context()
	used, max, err := h.budget.CheckDailyTokens(ctx, tenantID)
	var exceeded quota.TokenQuotaExceededError
	switch {
	case errors.As(err, &exceeded):
		logger.Info(ctx, "daily token quota exceeded", "used", used, "limit", max)
		dto.AppError(c, errTokenQuotaExceeded)
		return false
	case err != nil:
		logger.Warn(ctx, "token quota check failed, allowing request", "error", err.Error())
	}
	return true
}

// GetConversation 对话历史（分页，按时间正序）
// @Summary 获取对话历史
// @Tags Chat
// @Produce json
// @Param cid path string true "对话 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.ConversationHistoryResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/conversations/{cid} [get]
func (h *ChatHandler) GetConversation(c *gin.Context) {
	page := dto.BindPage(c)
	conv, result, err := h.chat.History(c.Request.Context(), middleware.GetTenantID(c), dto.BindConversationID(c), page)
	if err != nil {
		writeError(c, "get conversation failed", errPersistenceError.WithError(err))
		return
	}
	if conv == nil {
		dto.AppError(c, apperrors.ErrConversationNotFound)
		return
	}

	var msgs []*entity.ConversationMessage
	if result != nil {
		msgs = result.Items
	}
	dto.SuccessWithPage(c, dto.ToConversationHistoryResponse(conv, msgs), dto.PageMetaOf(result, page))
}
