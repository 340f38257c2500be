//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"therapy-chat-api/internal/application/chat"
	"therapy-chat-api/internal/application/quota"
	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/config"
	"therapy-chat-api/internal/domain/repository"
	"therapy-chat-api/internal/domain/service"
	"therapy-chat-api/internal/infrastructure/persistence/postgres"
	"therapy-chat-api/internal/infrastructure/persistence/redis"
	"therapy-chat-api/internal/interfaces/http/router"
)

// InitializeApp 初始化对话 API（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		PostgresSet,
		RedisSet,
		MessagingSet,
		VectorSet,
		ProviderSet,
		SafetySet,
		ChatSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化 job-worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		postgres.NewSessionRepository,
		postgres.NewTranscriptRepository,
		postgres.NewSafetyEventRepository,
		wire.Bind(new(repository.SessionRepository), new(*postgres.SessionRepository)),
		wire.Bind(new(repository.TranscriptRepository), new(*postgres.TranscriptRepository)),
		RedisSet,
		VectorSet,
		ProvideResiliencePolicy,
		ProvideEmbeddingProvider,
		ProvideIndexer,
		retrieval.NewIngestionService,
		ProvideWorker,
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewConversationRepository,
	postgres.NewConversationMessageRepository,
	postgres.NewSessionRepository,
	postgres.NewLLMUsageEventRepository,
	wire.Bind(new(repository.LLMUsageEventRepository), new(*postgres.LLMUsageEventRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
)

// VectorSet 按配置选择的向量后端
var VectorSet = wire.NewSet(
	ProvideVectorBackend,
)

// ProviderSet 外部模型供应商（向量化 + 补全）
var ProviderSet = wire.NewSet(
	ProvideResiliencePolicy,
	ProvideEmbeddingProvider,
	ProvideCompletionProvider,
)

// SafetySet 护栏与审计
var SafetySet = wire.NewSet(
	ProvideGuardrails,
	ProvideAuditor,
)

// ChatSet 对话编排、限流与配额
var ChatSet = wire.NewSet(
	ProvideRetriever,
	ProvideChatOptions,
	chat.NewService,
	ProvideConversations,
	quota.NewLLMUsageRecorder,
	wire.Bind(new(service.LLMUsageRecorder), new(*quota.LLMUsageRecorder)),
	ProvideChatRateLimiter,
	ProvideTokenQuotaChecker,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideChatHandler,
	ProvideRetrievalHandler,
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouter,
)
