package wire

import (
	"context"
	"testing"

	"therapy-chat-api/internal/config"
)

func TestProvideVectorBackend_Memory(t *testing.T) {
	cfg := &config.Config{Vector: config.VectorConfig{Backend: config.VectorBackendMemory, Dimension: 4}}
	vb, cleanup, err := ProvideVectorBackend(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer cleanup()
	if vb.Store == nil || vb.Name != "memory" || vb.Health != nil {
		t.Fatalf("backend=%+v", vb)
	}
}

func TestProvideVectorBackend_Unsupported(t *testing.T) {
	cfg := &config.Config{Vector: config.VectorConfig{Backend: "faiss"}}
	if _, _, err := ProvideVectorBackend(context.Background(), cfg, nil); err == nil {
		t.Fatalf("want error for unsupported backend")
	}
}

func TestProvideTokenQuotaChecker_DisabledIsNil(t *testing.T) {
	cfg := &config.Config{}
	if budget := ProvideTokenQuotaChecker(cfg, nil); budget != nil {
		t.Fatalf("budget=%v, want nil interface", budget)
	}
	cfg.Chat.DailyTokenLimit = 1000
	if budget := ProvideTokenQuotaChecker(cfg, nil); budget == nil {
		t.Fatalf("budget should be enabled")
	}
}

func TestProvideAuditor_DisabledHasNoSink(t *testing.T) {
	cfg := &config.Config{}
	auditor, cleanup := ProvideAuditor(cfg, nil)
	if auditor == nil {
		t.Fatalf("auditor is nil")
	}
	cleanup()
}

func TestProvideChatOptions(t *testing.T) {
	cfg := &config.Config{Chat: config.ChatConfig{Temperature: 0.3, MaxTokens: 256, MinScore: 0.6, PreviewRunes: 120, SafetyEnabled: true}}
	opts := ProvideChatOptions(cfg)
	if opts.Temperature != 0.3 || opts.MaxTokens != 256 || opts.MinScore != 0.6 || opts.PreviewRunes != 120 || !opts.SafetyEnabled {
		t.Fatalf("opts=%+v", opts)
	}
}
