package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"therapy-chat-api/internal/application/quota"
	"therapy-chat-api/internal/infrastructure/persistence/memory"
	"therapy-chat-api/internal/interfaces/http/dto"
	apperrors "therapy-chat-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"tenant":   GetTenantID(c),
			"user":     GetUserID(c),
			"identity": Identity(c),
		})
	})
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := newEngine(RequestID())

	w := do(r, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	if got := w.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Fatalf("generated request id=%q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	if got := do(r, req).Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("echoed request id=%q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	if got := do(r, req).Header().Get(RequestIDHeader); len(got) != 36 {
		t.Fatalf("oversized request id not replaced: %d", len(got))
	}
}

func TestAcceptRequestID(t *testing.T) {
	for _, id := range []string{"", "a b", "x\ny", "\u00e9t\u00e9"} {
		if acceptRequestID(id) {
			t.Fatalf("%q should be rejected", id)
		}
	}
	if !acceptRequestID("trace-01HZX") {
		t.Fatalf("plain id should be accepted")
	}
}

func TestTenant_RequiresHeader(t *testing.T) {
	r := newEngine(Tenant(TenantConfig{}))

	w := do(r, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	var body dto.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.ErrorCode != string(apperrors.CodeTenantMissing) {
		t.Fatalf("body=%s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set(TenantHeader, " tenant-a ")
	req.Header.Set(UserHeader, "patient-1")
	w = do(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got["tenant"] != "tenant-a" || got["user"] != "patient-1" || got["identity"] != "tenant-a:patient-1" {
		t.Fatalf("got=%v", got)
	}
}

func TestTenant_DefaultTenant(t *testing.T) {
	r := newEngine(Tenant(TenantConfig{DefaultTenantID: "dev"}))
	w := do(r, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"identity":"dev"`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestChatRateLimit_HeadersAndRejection(t *testing.T) {
	limiter := quota.NewChatRateLimiter(quota.NewRateLimiter(memory.NewCounterStore()), 2)
	r := newEngine(Tenant(TenantConfig{}), ChatRateLimit(limiter))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
		req.Header.Set(TenantHeader, "tenant-a")
		req.Header.Set(UserHeader, "patient-1")
		return do(r, req)
	}

	for i, wantRemaining := range []string{"1", "0"} {
		w := send()
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, w.Code)
		}
		if w.Header().Get(HeaderRateLimitLimit) != "2" || w.Header().Get(HeaderRateLimitRemaining) != wantRemaining {
			t.Fatalf("request %d headers=%v", i, w.Header())
		}
		if w.Header().Get(HeaderRateLimitReset) == "" {
			t.Fatalf("missing reset header")
		}
	}

	w := send()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" || w.Header().Get(HeaderRateLimitRemaining) != "0" {
		t.Fatalf("headers=%v", w.Header())
	}
	if !strings.Contains(w.Body.String(), string(apperrors.CodeRateLimited)) {
		t.Fatalf("body=%s", w.Body.String())
	}

	// 其他调用方不受影响
	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set(TenantHeader, "tenant-a")
	req.Header.Set(UserHeader, "patient-2")
	if w := do(r, req); w.Code != http.StatusOK {
		t.Fatalf("other identity status=%d", w.Code)
	}
}

type failingLimiter struct{}

func (failingLimiter) Limit() int64 { return 10 }

func (failingLimiter) Consume(context.Context, string) (*quota.Usage, error) {
	return nil, errors.New("redis: connection refused")
}

func TestChatRateLimit_FailsOpen(t *testing.T) {
	r := newEngine(Tenant(TenantConfig{}), ChatRateLimit(failingLimiter{}))
	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set(TenantHeader, "tenant-a")
	w := do(r, req)
	if w.Code != http.StatusOK || w.Header().Get(HeaderRateLimitLimit) != "10" {
		t.Fatalf("status=%d headers=%v", w.Code, w.Header())
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := map[time.Duration]int{
		0:                       1,
		500 * time.Millisecond:  1,
		time.Second:             1,
		1500 * time.Millisecond: 2,
		time.Hour:               3600,
	}
	for in, want := range cases {
		if got := retryAfterSeconds(in); got != want {
			t.Fatalf("retryAfterSeconds(%s)=%d, want %d", in, got, want)
		}
	}
}

func TestRecovery_ReturnsErrorResponse(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := do(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), string(apperrors.CodeInternalError)) {
		t.Fatalf("body=%s", w.Body.String())
	}
}
