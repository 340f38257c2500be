// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"therapy-chat-api/internal/domain/repository"
	apperrors "therapy-chat-api/pkg/errors"
)

// Response 统一响应结构
type Response[T any] struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    T         `json:"data,omitempty"`
	Meta    *PageMeta `json:"meta,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ErrorDetail 机器可读的错误码与补充信息
type ErrorDetail struct {
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

func respond[T any](c *gin.Context, status int, message string, data T, meta *PageMeta) {
	c.JSON(status, Response[T]{
		Code:    status,
		Message: message,
		Data:    data,
		Meta:    meta,
		TraceID: c.GetString("trace_id"),
	})
}

// Success 200
func Success[T any](c *gin.Context, data T) {
	respond(c, http.StatusOK, "success", data, nil)
}

// SuccessWithPage 200，附带分页信息
func SuccessWithPage[T any](c *gin.Context, data T, meta *PageMeta) {
	respond(c, http.StatusOK, "success", data, meta)
}

// Accepted 202，异步任务已入队
func Accepted[T any](c *gin.Context, data T) {
	respond(c, http.StatusAccepted, "accepted", data, nil)
}

// PageMetaOf 由仓储分页结果生成；result 为 nil 时按空页处理
func PageMetaOf[T any](result *repository.PagedResult[T], p repository.Pagination) *PageMeta {
	if result == nil {
		return &PageMeta{Page: p.Page, PageSize: p.PageSize}
	}
	return &PageMeta{
		Page:       result.Page,
		PageSize:   result.PageSize,
		Total:      int(result.Total),
		TotalPages: result.TotalPages,
	}
}

// AppError 按 AppError 的状态码与错误码返回；非 AppError 视为 500
func AppError(c *gin.Context, err error) {
	status, body := appErrorBody(c, err)
	c.JSON(status, body)
}

// AbortWithAppError 中间件中使用，终止后续处理
func AbortWithAppError(c *gin.Context, err error) {
	status, body := appErrorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}

func appErrorBody(c *gin.Context, err error) (int, ErrorResponse) {
	appErr := apperrors.AsAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := appErr.Message
	// 非预期错误不向客户端暴露内部信息
	if appErr.Code == apperrors.CodeUnknown {
		message = apperrors.ErrInternalError.Message
	}
	return status, ErrorResponse{
		Code:    status,
		Message: message,
		Error: &ErrorDetail{
			ErrorCode: string(appErr.Code),
			Details:   appErr.Detail,
		},
		TraceID: c.GetString("trace_id"),
	}
}
