package handler

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

	"therapy-chat-api/internal/application/chat"
	"therapy-chat-api/internal/application/quota"
	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/application/safety"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
	"therapy-chat-api/internal/interfaces/http/dto"
	"therapy-chat-api/internal/interfaces/http/middleware"
	apperrors "therapy-chat-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChat struct {
	last *chat.Request
	resp *chat.Response
	err  error

	conv *entity.Conversation
	msgs []*entity.ConversationMessage
}

func (f *fakeChat) Chat(_ context.Context, req *chat.Request) (*chat.Response, error) {
	f.last = req
	return f.resp, f.err
}

func (f *fakeChat) History(_ context.Context, tenantID, id string, p repository.Pagination) (*entity.Conversation, *repository.PagedResult[*entity.ConversationMessage], error) {
	if f.conv == nil || f.conv.ID != id || f.conv.TenantID != tenantID {
		return nil, nil, nil
	}
	return f.conv, repository.NewPagedResult(f.msgs, int64(len(f.msgs)), p), nil
}

type fakeUsage struct{ usage *quota.Usage }

func (f fakeUsage) Usage(context.Context, string) (*quota.Usage, error) {
	return f.usage, nil
}

type fakeSearcher struct {
	results  []*retrieval.SearchResult
	err      error
	tenant   string
	session  string
	count    int64
	sessions []string
}

func (f *fakeSearcher) SearchSession(_ context.Context, tenantID, sessionID string, _ []float32, _ int) ([]*retrieval.SearchResult, error) {
	f.tenant, f.session = tenantID, sessionID
	return f.results, f.err
}

func (f *fakeSearcher) ChunkCount(context.Context, string) (int64, error) {
	return f.count, f.err
}

func (f *fakeSearcher) SessionsWithEmbeddings(context.Context, string) ([]string, error) {
	return f.sessions, f.err
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, f.err
}

func (f fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, f.err
}

type fakeSessions struct{ byID map[string]*entity.Session }

func (f fakeSessions) GetByID(_ context.Context, tenantID, id string) (*entity.Session, error) {
	s, ok := f.byID[id]
	if !ok || s.TenantID != tenantID {
		return nil, nil
	}
	return s, nil
}

func (fakeSessions) UpdateStatus(context.Context, string, entity.SessionStatus, string) error {
	return nil
}

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) PublishTranscriptReady(_ context.Context, tenantID, sessionID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, tenantID+"/"+sessionID)
	return "1700000000000-0", nil
}

func newTestEngine(register func(v1 *gin.RouterGroup)) *gin.Engine {
	r := gin.New()
	v1 := r.Group("/v1")
	v1.Use(middleware.Tenant(middleware.TenantConfig{}))
	register(v1)
	return r
}

func request(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, "tenant-a")
	req.Header.Set(middleware.UserHeader, "patient-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body dto.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error == nil {
		t.Fatalf("not an error response: %s", w.Body.String())
	}
	return body.Error.ErrorCode
}

type fakeBudget struct {
	used, max int64
}

func (f fakeBudget) DailyUsage(context.Context, string) (int64, int64, error) {
	return f.used, f.max, nil
}

func (f fakeBudget) CheckDailyTokens(_ context.Context, tenantID string) (int64, int64, error) {
	if f.max > 0 && f.used >= f.max {
		return f.used, f.max, quota.TokenQuotaExceededError{TenantID: tenantID, Max: f.max, Used: f.used}
	}
	return f.used, f.max, nil
}

func chatEngine(svc *fakeChat, usage UsageReader, budget ...TokenBudget) *gin.Engine {
	var b TokenBudget
	if len(budget) > 0 {
		b = budget[0]
	}
	h := NewChatHandler(svc, usage, b)
	return newTestEngine(func(v1 *gin.RouterGroup) {
		v1.POST("/chat", h.Chat)
		v1.GET("/chat/usage", h.Usage)
		v1.GET("/conversations/:cid", h.GetConversation)
	})
}

func TestChatHandler_Chat(t *testing.T) {
	svc := &fakeChat{resp: &chat.Response{
		Text:           "Let's try the breathing exercise again.",
		ConversationID: "conv-1",
		InputAction:    safety.ActionAllow,
	}}
	r := chatEngine(svc, nil)

	w := request(r, http.MethodPost, "/v1/chat", `{"message":"I feel anxious","session_ids":["s-1"],"top_k":3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if svc.last.TenantID != "tenant-a" || svc.last.UserID != "patient-1" || svc.last.TopK != 3 || len(svc.last.SessionIDs) != 1 {
		t.Fatalf("request=%+v", svc.last)
	}
	var body dto.Response[dto.ChatResponse]
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.ConversationID != "conv-1" || body.Data.InputAction != "allow" || body.Data.Sources == nil {
		t.Fatalf("data=%+v", body.Data)
	}
}

func TestChatHandler_ChatValidation(t *testing.T) {
	r := chatEngine(&fakeChat{}, nil)
	w := request(r, http.MethodPost, "/v1/chat", `{"message":""}`)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != string(apperrors.CodeInvalidParam) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestChatHandler_ChatErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{"empty message", chat.ErrEmptyMessage, http.StatusBadRequest, apperrors.CodeInvalidParam},
		{"embed", &chat.Error{Stage: chat.StageEmbed, Err: context.DeadlineExceeded}, http.StatusBadGateway, apperrors.CodeEmbeddingFailed},
		{"retrieve", &chat.Error{Stage: chat.StageRetrieve, Err: context.DeadlineExceeded}, http.StatusInternalServerError, apperrors.CodeRetrievalFailed},
		{"complete", &chat.Error{Stage: chat.StageComplete, Err: errors.New("upstream 503")}, http.StatusBadGateway, apperrors.CodeLLMCallFailed},
		{"foreign conversation", apperrors.ErrConversationNotFound, http.StatusNotFound, apperrors.CodeConversationNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, apperrors.CodeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chatEngine(&fakeChat{err: tc.err}, nil)
			w := request(r, http.MethodPost, "/v1/chat", `{"message":"hello"}`)
			if w.Code != tc.status || errorCode(t, w) != string(tc.code) {
				t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
			}
			if strings.Contains(w.Body.String(), "boom") {
				t.Fatalf("internal error leaked: %s", w.Body.String())
			}
		})
	}
}

func TestChatHandler_Usage(t *testing.T) {
	usage := &quota.Usage{Count: 3, Limit: 60, Remaining: 57, ResetIn: 90 * time.Second, ResetAt: time.Now().Add(90 * time.Second)}
	r := chatEngine(&fakeChat{}, fakeUsage{usage: usage}, fakeBudget{used: 1200, max: 50000})

	w := request(r, http.MethodGet, "/v1/chat/usage", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body dto.Response[dto.ChatUsageResponse]
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Used != 3 || body.Data.Remaining != 57 || body.Data.ResetIn != 90 {
		t.Fatalf("data=%+v", body.Data)
	}
	if body.Data.TokensUsedToday != 1200 || body.Data.DailyTokenLimit != 50000 {
		t.Fatalf("token usage=%+v", body.Data)
	}
}

func TestChatHandler_DailyTokenBudget(t *testing.T) {
	svc := &fakeChat{resp: &chat.Response{Text: "ok", InputAction: safety.ActionAllow}}
	r := chatEngine(svc, nil, fakeBudget{used: 50000, max: 50000})

	w := request(r, http.MethodPost, "/v1/chat", `{"message":"hello"}`)
	if w.Code != http.StatusTooManyRequests || errorCode(t, w) != string(apperrors.CodeTooManyRequests) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if svc.last != nil {
		t.Fatalf("chat service called over budget")
	}
}

func TestChatHandler_GetConversation(t *testing.T) {
	svc := &fakeChat{
		conv: entity.NewConversation("conv-1", "tenant-a", "patient-1"),
		msgs: []*entity.ConversationMessage{
			entity.NewConversationMessage("conv-1", entity.RoleUser, "hi", nil),
			entity.NewConversationMessage("conv-1", entity.RoleAssistant, "hello", json.RawMessage(`{"sources":[]}`)),
		},
	}
	r := chatEngine(svc, nil)

	w := request(r, http.MethodGet, "/v1/conversations/conv-1?page=1&page_size=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body dto.Response[dto.ConversationHistoryResponse]
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Data.Messages) != 2 || body.Meta == nil || body.Meta.Total != 2 {
		t.Fatalf("body=%s", w.Body.String())
	}

	w = request(r, http.MethodGet, "/v1/conversations/missing", "")
	if w.Code != http.StatusNotFound || errorCode(t, w) != string(apperrors.CodeConversationNotFound) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func retrievalEngine(h *RetrievalHandler) *gin.Engine {
	return newTestEngine(func(v1 *gin.RouterGroup) {
		v1.POST("/sessions/:sid/search", h.SearchSession)
		v1.POST("/sessions/:sid/embeddings", h.EnqueueEmbeddings)
		v1.GET("/retrieval/stats", h.Stats)
	})
}

func sessionsOf(ids ...string) fakeSessions {
	s := fakeSessions{byID: map[string]*entity.Session{}}
	for _, id := range ids {
		s.byID[id] = &entity.Session{ID: id, TenantID: "tenant-a"}
	}
	return s
}

func TestRetrievalHandler_SearchSession(t *testing.T) {
	searcher := &fakeSearcher{results: []*retrieval.SearchResult{{
		Chunk: &entity.SessionChunk{ID: "c-1", SessionID: "s-1", Chunk: entity.Chunk{Index: 2, Content: "box breathing", Speaker: "Therapist"}},
		Score: 0.91,
	}}}
	h := NewRetrievalHandler(searcher, fakeEmbedder{}, sessionsOf("s-1"), nil, "memory")
	r := retrievalEngine(h)

	w := request(r, http.MethodPost, "/v1/sessions/s-1/search", `{"query":"breathing"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if searcher.tenant != "tenant-a" || searcher.session != "s-1" {
		t.Fatalf("searched %s/%s", searcher.tenant, searcher.session)
	}
	var body dto.Response[dto.SessionSearchResponse]
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Data.Results) != 1 || body.Data.Results[0].ChunkIndex != 2 || body.Data.Results[0].Content != "box breathing" {
		t.Fatalf("data=%+v", body.Data)
	}

	w = request(r, http.MethodPost, "/v1/sessions/s-other/search", `{"query":"breathing"}`)
	if w.Code != http.StatusNotFound || errorCode(t, w) != string(apperrors.CodeSessionNotFound) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	w = request(r, http.MethodPost, "/v1/sessions/s-1/search", `{"query":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank query status=%d", w.Code)
	}
}

func TestRetrievalHandler_SearchErrors(t *testing.T) {
	h := NewRetrievalHandler(&fakeSearcher{}, fakeEmbedder{err: errors.New("timeout")}, nil, nil, "memory")
	w := request(retrievalEngine(h), http.MethodPost, "/v1/sessions/s-1/search", `{"query":"x"}`)
	if w.Code != http.StatusBadGateway || errorCode(t, w) != string(apperrors.CodeEmbeddingFailed) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	h = NewRetrievalHandler(&fakeSearcher{err: retrieval.ErrVectorDisabled}, fakeEmbedder{}, nil, nil, "")
	w = request(retrievalEngine(h), http.MethodPost, "/v1/sessions/s-1/search", `{"query":"x"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestRetrievalHandler_EnqueueEmbeddings(t *testing.T) {
	pub := &fakePublisher{}
	h := NewRetrievalHandler(&fakeSearcher{}, fakeEmbedder{}, sessionsOf("s-1"), pub, "memory")
	r := retrievalEngine(h)

	w := request(r, http.MethodPost, "/v1/sessions/s-1/embeddings", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(pub.published) != 1 || pub.published[0] != "tenant-a/s-1" {
		t.Fatalf("published=%v", pub.published)
	}

	w = request(r, http.MethodPost, "/v1/sessions/s-2/embeddings", "")
	if w.Code != http.StatusNotFound || len(pub.published) != 1 {
		t.Fatalf("status=%d published=%v", w.Code, pub.published)
	}

	pub.err = errors.New("redis down")
	w = request(r, http.MethodPost, "/v1/sessions/s-1/embeddings", "")
	if w.Code != http.StatusInternalServerError || errorCode(t, w) != string(apperrors.CodeMessagingError) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestRetrievalHandler_Stats(t *testing.T) {
	h := NewRetrievalHandler(&fakeSearcher{count: 12, sessions: []string{"s-1", "s-2"}}, fakeEmbedder{}, nil, nil, "pgvector")
	w := request(retrievalEngine(h), http.MethodGet, "/v1/retrieval/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body dto.Response[dto.RetrievalStatsResponse]
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Backend != "pgvector" || body.Data.ChunkCount != 12 || len(body.Data.SessionsWithEmbeddings) != 2 {
		t.Fatalf("data=%+v", body.Data)
	}
}

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Ready(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	down := checkerFunc(func(context.Context) error { return errors.New("connection refused") })

	serve := func(h *HealthHandler) (*httptest.ResponseRecorder, readinessResponse) {
		r := gin.New()
		r.GET("/ready", h.Ready)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		var body readinessResponse
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		return w, body
	}

	w, body := serve(NewHealthHandler("test",
		Dependency{Name: "postgres", Checker: ok, Required: true},
		Dependency{Name: "milvus", Checker: down},
	))
	if w.Code != http.StatusOK || body.Checks["milvus"].Status != "degraded" {
		t.Fatalf("status=%d body=%+v", w.Code, body)
	}

	w, body = serve(NewHealthHandler("test",
		Dependency{Name: "postgres", Checker: ok, Required: true},
		Dependency{Name: "redis", Checker: down, Required: true},
	))
	if w.Code != http.StatusServiceUnavailable || body.Status != "not_ready" || body.Checks["redis"].Error == "" {
		t.Fatalf("status=%d body=%+v", w.Code, body)
	}
}
