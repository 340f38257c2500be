package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/domain/repository"
	"therapy-chat-api/internal/domain/service"
	"therapy-chat-api/internal/interfaces/http/dto"
	"therapy-chat-api/internal/interfaces/http/middleware"
	apperrors "therapy-chat-api/pkg/errors"
	"therapy-chat-api/pkg/logger"
)

// SessionSearcher 租户内向量检索
type SessionSearcher interface {
	SearchSession(ctx context.Context, tenantID, sessionID string, queryVector []float32, topK int) ([]*retrieval.SearchResult, error)
	ChunkCount(ctx context.Context, tenantID string) (int64, error)
	SessionsWithEmbeddings(ctx context.Context, tenantID string) ([]string, error)
}

// IndexPublisher 投递转写就绪消息，由 job-worker 完成切分与向量化
type IndexPublisher interface {
	PublishTranscriptReady(ctx context.Context, tenantID, sessionID string) (string, error)
}

// RetrievalHandler 会话检索与索引管理
type RetrievalHandler struct {
	searcher  SessionSearcher
	embedder  service.EmbeddingProvider
	sessions  repository.SessionRepository
	publisher IndexPublisher
	backend   string
}

func NewRetrievalHandler(
	searcher SessionSearcher,
	embedder service.EmbeddingProvider,
	sessions repository.SessionRepository,
	publisher IndexPublisher,
	backend string,
) *RetrievalHandler {
	return &RetrievalHandler{
		searcher:  searcher,
		embedder:  embedder,
		sessions:  sessions,
		publisher: publisher,
		backend:   backend,
	}
}

// SearchSession 在单个会话内检索
// @Summary 会话内检索
// @Tags Retrieval
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param body body dto.SessionSearchRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.SessionSearchResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/search [post]
func (h *RetrievalHandler) SearchSession(c *gin.Context) {
	var req dto.SessionSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.AppError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		dto.AppError(c, apperrors.ErrInvalidParam.WithDetail("query is required"))
		return
	}

	if h.embedder == nil {
		dto.AppError(c, errVectorDisabled)
		return
	}
	ctx := c.Request.Context()
	tenantID := middleware.GetTenantID(c)
	sessionID := dto.BindSessionID(c)
	if !h.requireSession(c, tenantID, sessionID) {
		return
	}

	vector, err := h.embedder.Embed(ctx, query)
	if err != nil {
		writeError(c, "embed search query failed", errEmbeddingFailed.WithError(err))
		return
	}
	results, err := h.searcher.SearchSession(ctx, tenantID, sessionID, vector, req.TopK)
	if err != nil {
		if _, known := knownAppError(err); !known {
			err = errRetrievalFailed.WithError(err)
		}
		writeError(c, "session search failed", err)
		return
	}
	dto.Success(c, dto.ToSessionSearchResponse(sessionID, results))
}

// EnqueueEmbeddings 投递会话的向量化任务
// @Summary 生成会话向量
// @Tags Retrieval
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 202 {object} dto.Response[dto.EmbeddingJobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/embeddings [post]
func (h *RetrievalHandler) EnqueueEmbeddings(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	sessionID := dto.BindSessionID(c)
	if h.publisher == nil {
		dto.AppError(c, apperrors.ErrServiceUnavailable)
		return
	}
	if !h.requireSession(c, tenantID, sessionID) {
		return
	}

	msgID, err := h.publisher.PublishTranscriptReady(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		writeError(c, "enqueue embedding job failed", errEnqueueFailed.WithError(err))
		return
	}
	logger.Info(c.Request.Context(), "embedding job enqueued",
		"session_id", sessionID,
		"message_id", msgID,
	)
	dto.Accepted(c, &dto.EmbeddingJobResponse{
		SessionID: sessionID,
		MessageID: msgID,
		Status:    "queued",
	})
}

// Stats 租户索引统计
// @Summary 检索索引统计
// @Tags Retrieval
// @Produce json
// @Success 200 {object} dto.Response[dto.RetrievalStatsResponse]
// @Router /v1/retrieval/stats [get]
func (h *RetrievalHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := middleware.GetTenantID(c)

	count, err := h.searcher.ChunkCount(ctx, tenantID)
	if err != nil {
		writeError(c, "count chunks failed", err)
		return
	}
	sessions, err := h.searcher.SessionsWithEmbeddings(ctx, tenantID)
	if err != nil {
		writeError(c, "list embedded sessions failed", err)
		return
	}
	if sessions == nil {
		sessions = []string{}
	}
	dto.Success(c, &dto.RetrievalStatsResponse{
		Backend:                h.backend,
		ChunkCount:             count,
		SessionsWithEmbeddings: sessions,
	})
}

// requireSession 会话不存在或属于其他租户时写入 404
func (h *RetrievalHandler) requireSession(c *gin.Context, tenantID, sessionID string) bool {
	if h.sessions == nil {
		return true
	}
	s, err := h.sessions.GetByID(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		writeError(c, "load session failed", errPersistenceError.WithError(err))
		return false
	}
	if s == nil {
		dto.AppError(c, apperrors.ErrSessionNotFound)
		return false
	}
	return true
}
