package service

import (
	"context"
	"strings"
)

// 调用场景，用于 LLM 指标与用量流水的 workflow 标签
const (
	WorkflowChat      = "chat"
	WorkflowIndexing  = "indexing"
	WorkflowRetrieval = "retrieval"
)

const unknownLabel = "unknown"

// callLabels 随 ctx 传递给 eino 回调的标签
type callLabels struct {
	workflow string
	provider string
}

type callLabelsKey struct{}

func labelsFrom(ctx context.Context) callLabels {
	if ctx == nil {
		return callLabels{}
	}
	l, _ := ctx.Value(callLabelsKey{}).(callLabels)
	return l
}

func withLabels(ctx context.Context, update func(*callLabels)) context.Context {
	if ctx == nil {
		return nil
	}
	l := labelsFrom(ctx)
	before := l
	update(&l)
	if l == before {
		return ctx
	}
	return context.WithValue(ctx, callLabelsKey{}, l)
}

// WithWorkflow 空白值不覆盖已有标签
func WithWorkflow(ctx context.Context, workflow string) context.Context {
	return withLabels(ctx, func(l *callLabels) {
		if w := strings.TrimSpace(workflow); w != "" {
			l.workflow = w
		}
	})
}

// WithProvider 空白值不覆盖已有标签
func WithProvider(ctx context.Context, provider string) context.Context {
	return withLabels(ctx, func(l *callLabels) {
		if p := strings.TrimSpace(provider); p != "" {
			l.provider = p
		}
	})
}

func WithWorkflowProvider(ctx context.Context, workflow, provider string) context.Context {
	return WithProvider(WithWorkflow(ctx, workflow), provider)
}

func WorkflowFromContext(ctx context.Context) string {
	return orUnknown(labelsFrom(ctx).workflow)
}

func ProviderFromContext(ctx context.Context) string {
	return orUnknown(labelsFrom(ctx).provider)
}

func orUnknown(s string) string {
	if s == "" {
		return unknownLabel
	}
	return s
}
