// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"therapy-chat-api/internal/application/chat"
	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/interfaces/http/dto"
	apperrors "therapy-chat-api/pkg/errors"
	"therapy-chat-api/pkg/logger"
)

var (
	errEmbeddingFailed  = apperrors.New(apperrors.CodeEmbeddingFailed, "embedding failed")
	errVectorDisabled   = apperrors.New(apperrors.CodeServiceUnavailable, "vector retrieval disabled")
	errRetrievalFailed  = apperrors.New(apperrors.CodeRetrievalFailed, "retrieval failed")
	errEnqueueFailed    = apperrors.New(apperrors.CodeMessagingError, "failed to enqueue embedding job")
	errPersistenceError = apperrors.New(apperrors.CodeDatabaseError, "database error")

	errTokenQuotaExceeded = apperrors.New(apperrors.CodeTooManyRequests, "daily token quota exceeded")
)

// toAppError 将应用层错误映射为对外错误码，无法识别的错误视为 500
func toAppError(err error) *apperrors.AppError {
	if appErr, ok := knownAppError(err); ok {
		return appErr
	}
	return apperrors.ErrInternalError.WithError(err)
}

func knownAppError(err error) (*apperrors.AppError, bool) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return apperrors.ErrInvalidParam.WithDetail(err.Error()), true
	case errors.Is(err, retrieval.ErrTopKTooLarge):
		return apperrors.ErrInvalidParam.WithDetail(err.Error()), true
	case errors.Is(err, retrieval.ErrTenantRequired):
		return apperrors.ErrTenantMissing, true
	case errors.Is(err, retrieval.ErrVectorDisabled):
		return errVectorDisabled, true
	case errors.Is(err, retrieval.ErrSessionNotFound):
		return apperrors.ErrSessionNotFound, true
	case errors.Is(err, retrieval.ErrTranscriptNotFound):
		return apperrors.ErrTranscriptNotFound, true
	}
	if ce, ok := chat.AsError(err); ok {
		switch ce.Stage {
		case chat.StageEmbed:
			return errEmbeddingFailed.WithError(err), true
		case chat.StageRetrieve:
			return errRetrievalFailed.WithError(err), true
		case chat.StageComplete:
			return apperrors.ErrLLMCallFailed.WithError(err), true
		}
	}
	return nil, false
}

// writeError 记录并返回错误；4xx 只记 info
func writeError(c *gin.Context, msg string, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error(c.Request.Context(), msg, err, "error_code", string(appErr.Code))
	} else {
		logger.Info(c.Request.Context(), msg, "error_code", string(appErr.Code), "error", err.Error())
	}
	dto.AppError(c, appErr)
}
