package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/meguminnnnnnnnn/go-openai"
)

// Class 外部调用失败的分类
type Class int

const (
	// ClassPermanent 不可重试（参数错误、鉴权失败等）
	ClassPermanent Class = iota
	// ClassTransient 瞬时失败（5xx、超时），按指数退避重试
	ClassTransient
	// ClassRateLimited 供应商限流，优先使用 Retry-After 提示
	ClassRateLimited
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "permanent"
	}
}

// ProviderError 重试包装器对外暴露的唯一错误类型
type ProviderError struct {
	Op        string
	Retryable bool
	Attempts  int
	Err       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	kind := "not retryable"
	if e.Retryable {
		kind = "retries exhausted"
	}
	return fmt.Sprintf("%s failed (%s, attempts=%d): %v", e.Op, kind, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRetryable 判断错误链中的 ProviderError 是否可重试
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// StatusError 描述带 HTTP 状态码的供应商错误
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// ParseRetryAfter 解析 Retry-After 头（秒数或 HTTP 日期）
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

var (
	// go-openai 的错误文本形如 "error, status code: 400, status: 400 Bad Request, message: ..."
	statusCodePattern = regexp.MustCompile(`(?i)status code:\s*(\d{3})\b`)
	rateLimitPattern  = regexp.MustCompile(`(?i)(rate[ _-]?limit|too many requests)`)
	transientPattern  = regexp.MustCompile(`(?i)(internal server error|bad gateway|service unavailable|gateway timeout|overloaded|connection reset|timed? ?out)`)
)

func classifyStatus(code int, retryAfter time.Duration) (Class, time.Duration) {
	switch {
	case code == http.StatusTooManyRequests:
		return ClassRateLimited, retryAfter
	case code == http.StatusRequestTimeout, code >= 500:
		return ClassTransient, retryAfter
	default:
		return ClassPermanent, 0
	}
}

// providerStatus 取 OpenAI 兼容客户端错误中的 HTTP 状态码
func providerStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

// Classify 对外部调用错误分类，并返回供应商给出的重试等待提示。
// 有状态码时只按状态码判断，错误文本中的其他数字不参与分类。
func Classify(err error) (Class, time.Duration) {
	if err == nil {
		return ClassPermanent, 0
	}
	if errors.Is(err, context.Canceled) {
		return ClassPermanent, 0
	}

	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(se.StatusCode, se.RetryAfter)
	}
	if code, ok := providerStatus(err); ok {
		return classifyStatus(code, 0)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient, 0
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTransient, 0
	}

	msg := err.Error()
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return classifyStatus(code, 0)
	}
	if rateLimitPattern.MatchString(msg) {
		return ClassRateLimited, 0
	}
	if transientPattern.MatchString(msg) {
		return ClassTransient, 0
	}
	return ClassPermanent, 0
}
