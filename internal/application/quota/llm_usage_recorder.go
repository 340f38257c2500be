package quota

import (
	"context"

	"therapy-chat-api/internal/domain/entity"
	"therapy-chat-api/internal/domain/repository"
	"therapy-chat-api/internal/domain/service"
	"therapy-chat-api/pkg/logger"
)

var _ service.LLMUsageRecorder = (*LLMUsageRecorder)(nil)

// LLMUsageRecorder 把补全用量写入 llm_usage_events，供 TokenQuotaChecker 汇总
type LLMUsageRecorder struct {
	events repository.LLMUsageEventRepository
}

func NewLLMUsageRecorder(events repository.LLMUsageEventRepository) *LLMUsageRecorder {
	return &LLMUsageRecorder{events: events}
}

// Record 没有租户的调用不计入预算
func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.events == nil {
		return nil
	}
	in = in.Normalize()
	if in.TenantID == "" {
		return nil
	}
	if err := in.Validate(); err != nil {
		return err
	}

	evt := entity.NewLLMUsageEvent(in.TenantID, in.Workflow, in.Provider, in.Model,
		in.PromptTokens, in.CompletionTokens, in.Elapsed)
	if err := r.events.Create(ctx, evt); err != nil {
		logger.Warn(ctx, "llm usage not recorded",
			"tenant_id", in.TenantID,
			"tokens", evt.TotalTokens(),
			"error", err.Error(),
		)
		return err
	}
	return nil
}
