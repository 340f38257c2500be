// Package chat 编排一次受安全护栏保护的检索增强对话
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/application/safety"
	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/service"
	"therapy-chat-api/pkg/logger"
	"therapy-chat-api/pkg/metrics"
	"therapy-chat-api/pkg/tracer"
)

// Options 对话生成参数
type Options struct {
	Temperature  float64
	MaxTokens    int
	MinScore     float64
	PreviewRunes int
	// SafetyEnabled 为 false 时跳过输入与输出护栏
	SafetyEnabled bool
}

// DefaultOptions 返回默认参数
func DefaultOptions() Options {
	return Options{
		Temperature:   0.7,
		MaxTokens:     1024,
		MinScore:      0.5,
		PreviewRunes:  200,
		SafetyEnabled: true,
	}
}

// Request 单轮对话输入
type Request struct {
	TenantID       string
	UserID         string
	ConversationID string
	Message        string
	History        []entity.ChatTurn
	TopK           int
	// SessionIDs 为空表示检索租户全部会话
	SessionIDs []string
}

// Source 引用来源，仅携带正文预览
type Source struct {
	SessionID      string   `json:"session_id"`
	ChunkID        string   `json:"chunk_id"`
	ContentPreview string   `json:"content_preview"`
	Score          float64  `json:"score"`
	StartTime      *float64 `json:"start_time,omitempty"`
	Speaker        string   `json:"speaker,omitempty"`
}

// Usage 补全调用的 token 用量
type Usage struct {
	Provider         string `json:"provider,omitempty"`
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Response 单轮对话输出
type Response struct {
	Text           string        `json:"text"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Sources        []Source      `json:"sources"`
	InputAction    safety.Action `json:"input_action"`
	OutputAction   safety.Action `json:"output_action,omitempty"`
	Escalated      bool          `json:"escalated"`
	Usage          *Usage        `json:"usage,omitempty"`
}

// Service 对话编排：输入护栏、检索、生成、输出护栏
type Service struct {
	guardrails *safety.Guardrails
	auditor    *safety.Auditor
	embedder   service.EmbeddingProvider
	retriever  *retrieval.Retriever
	completer  service.CompletionProvider
	usage      service.LLMUsageRecorder
	opts       Options
}

func NewService(
	guardrails *safety.Guardrails,
	auditor *safety.Auditor,
	embedder service.EmbeddingProvider,
	retriever *retrieval.Retriever,
	completer service.CompletionProvider,
	usage service.LLMUsageRecorder,
	opts Options,
) *Service {
	if opts.PreviewRunes <= 0 {
		opts.PreviewRunes = 200
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &Service{
		guardrails: guardrails,
		auditor:    auditor,
		embedder:   embedder,
		retriever:  retriever,
		completer:  completer,
		usage:      usage,
		opts:       opts,
	}
}

// Chat 执行一轮对话。
// 输入被 BLOCK 时直接返回固定拒答，不做检索与生成；
// ESCALATE 仍完整生成，最终文本前追加危机求助信息。
func (s *Service) Chat(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, retrieval.ErrTenantRequired
	}
	if s.retriever.Enabled() {
		if _, err := s.retriever.ResolveTopK(req.TopK); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	ctx = service.WithWorkflow(ctx, service.WorkflowChat)
	ctx, span := tracer.Start(ctx, "chat.Turn")
	defer span.End()

	subject := safety.Subject{TenantID: req.TenantID, UserID: req.UserID, ConversationID: req.ConversationID}
	resp := &Response{ConversationID: req.ConversationID, Sources: []Source{}}

	// 1. 输入护栏
	in := s.checkInput(ctx, req.Message)
	resp.InputAction = in.Action
	s.auditor.Record(ctx, subject, safety.DirectionInput, in)
	span.SetAttributes(attribute.String("chat.input_action", string(in.Action)))
	if in.Action == safety.ActionBlock {
		resp.Text = safety.InputRefusal
		s.observe(start, "refused", 0)
		return resp, nil
	}
	escalate := in.Action == safety.ActionEscalate

	// 2-3. 向量化与检索
	results, err := s.retrieve(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		s.observe(start, "failed", 0)
		return nil, err
	}

	// 4-5. 构建 Prompt 并生成
	completion, err := s.complete(ctx, req, retrieval.BuildSystemPrompt(results))
	if err != nil {
		tracer.RecordError(span, err)
		s.observe(start, "failed", 0)
		return nil, err
	}
	s.recordUsage(ctx, req.TenantID, completion, time.Since(start))

	// 6. 输出护栏
	text := completion.Text
	out := s.checkOutput(ctx, text)
	resp.OutputAction = out.Action
	s.auditor.Record(ctx, subject, safety.DirectionOutput, out)
	switch out.Action {
	case safety.ActionBlock:
		text = safety.OutputDeferral
	case safety.ActionModify:
		text = out.ModifiedText
	}

	// 7. 危机求助信息前置
	if escalate {
		text = safety.PrependCrisisResources(text)
		resp.Escalated = true
	}

	// 8. 引用来源
	resp.Text = text
	resp.Sources = s.sources(results)
	resp.Usage = &Usage{
		Provider:         completion.Provider,
		Model:            completion.Model,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
	}

	outcome := "answered"
	if escalate {
		outcome = "escalated"
	}
	span.SetAttributes(
		attribute.String("chat.output_action", string(out.Action)),
		attribute.Int("chat.sources", len(resp.Sources)),
	)
	s.observe(start, outcome, len(resp.Sources))
	return resp, nil
}

func (s *Service) checkInput(ctx context.Context, text string) safety.Result {
	if !s.opts.SafetyEnabled || s.guardrails == nil {
		return safety.Result{Action: safety.ActionAllow}
	}
	return s.guardrails.CheckInput(ctx, text)
}

func (s *Service) checkOutput(ctx context.Context, text string) safety.Result {
	if !s.opts.SafetyEnabled || s.guardrails == nil {
		return safety.Result{Action: safety.ActionAllow}
	}
	return s.guardrails.CheckOutput(ctx, text)
}

// retrieve 仅在未配置向量检索或没有命中时使用无上下文 Prompt；
// 向量化或检索调用失败（含超时）都视为对话失败
func (s *Service) retrieve(ctx context.Context, req *Request) ([]*retrieval.SearchResult, error) {
	if !s.retriever.Enabled() || s.embedder == nil {
		logger.Warn(ctx, "retrieval disabled, answering without context")
		return nil, nil
	}

	embedCtx, span := tracer.Start(ctx, "chat.Embed")
	vec, err := s.embedder.Embed(embedCtx, req.Message)
	if err != nil {
		tracer.RecordError(span, err)
		span.End()
		return nil, &Error{Stage: StageEmbed, Err: err}
	}
	span.End()

	results, err := s.retriever.Search(ctx, retrieval.SearchParams{
		TenantID:    req.TenantID,
		QueryVector: vec,
		TopK:        req.TopK,
		MinScore:    s.opts.MinScore,
		SessionIDs:  req.SessionIDs,
	})
	switch {
	case errors.Is(err, retrieval.ErrVectorDisabled):
		logger.Warn(ctx, "vector store disabled, answering without context")
		return nil, nil
	case err != nil:
		return nil, &Error{Stage: StageRetrieve, Err: err}
	}
	return results, nil
}

func (s *Service) complete(ctx context.Context, req *Request, systemPrompt string) (*service.Completion, error) {
	ctx, span := tracer.Start(ctx, "chat.Complete")
	defer span.End()

	messages := make([]entity.ChatTurn, 0, len(req.History)+1)
	for _, turn := range req.History {
		if turn.IsBlank() || !turn.Role.Valid() {
			continue
		}
		messages = append(messages, turn)
	}
	messages = append(messages, entity.ChatTurn{Role: entity.RoleUser, Content: req.Message})

	completion, err := s.completer.Complete(ctx, &service.CompletionRequest{
		Messages:     messages,
		SystemPrompt: systemPrompt,
		Temperature:  s.opts.Temperature,
		MaxTokens:    s.opts.MaxTokens,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, &Error{Stage: StageComplete, Err: err}
	}
	if completion == nil {
		completion = &service.Completion{}
	}
	return completion, nil
}

func (s *Service) recordUsage(ctx context.Context, tenantID string, c *service.Completion, elapsed time.Duration) {
	if s.usage == nil || c == nil {
		return
	}
	_ = s.usage.Record(ctx, service.LLMUsageInput{
		TenantID:         tenantID,
		Workflow:         service.WorkflowChat,
		Provider:         c.Provider,
		Model:            c.Model,
		PromptTokens:     c.PromptTokens,
		CompletionTokens: c.CompletionTokens,
		Elapsed:          elapsed,
	})
}

func (s *Service) sources(results []*retrieval.SearchResult) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		if r == nil || r.Chunk == nil {
			continue
		}
		out = append(out, Source{
			SessionID:      r.Chunk.SessionID,
			ChunkID:        r.Chunk.ID,
			ContentPreview: retrieval.ContentPreview(r.Chunk.Content, s.opts.PreviewRunes),
			Score:          r.Score,
			StartTime:      r.Chunk.StartTime,
			Speaker:        r.Chunk.Speaker,
		})
	}
	return out
}

func (s *Service) observe(start time.Time, outcome string, sources int) {
	metrics.ChatTurnsTotal.WithLabelValues(outcome).Inc()
	metrics.ChatTurnDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if outcome == "answered" || outcome == "escalated" {
		metrics.ChatSourcesReturned.Observe(float64(sources))
	}
}
