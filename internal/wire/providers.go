// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"os"

	"therapy-chat-api/internal/application/chat"
	"therapy-chat-api/internal/application/chunking"
	"therapy-chat-api/internal/application/quota"
	"therapy-chat-api/internal/application/retrieval"
	"therapy-chat-api/internal/application/safety"
	"therapy-chat-api/internal/config"
	"therapy-chat-api/internal/domain/service"
	infraembedding "therapy-chat-api/internal/infrastructure/embedding"
	"therapy-chat-api/internal/infrastructure/llm"
	"therapy-chat-api/internal/infrastructure/messaging"
	"therapy-chat-api/internal/infrastructure/persistence/memory"
	"therapy-chat-api/internal/infrastructure/persistence/milvus"
	"therapy-chat-api/internal/infrastructure/persistence/postgres"
	"therapy-chat-api/internal/infrastructure/persistence/redis"
	"therapy-chat-api/internal/interfaces/http/handler"
	"therapy-chat-api/internal/interfaces/http/router"
	"therapy-chat-api/internal/interfaces/worker"
	"therapy-chat-api/pkg/logger"
	"therapy-chat-api/pkg/resilience"
)

// Version 由 cmd 在构建时注入，用于 /health
var Version = "dev"

// VectorBackend 已选定的向量存储；Store 为 nil 表示检索禁用
type VectorBackend struct {
	Store retrieval.VectorStore
	Name  string
	// Health Milvus 独立部署时的健康检查，其余后端为 nil
	Health handler.HealthChecker
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	return messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideVectorBackend 按配置选择向量后端。
// Milvus 不可达时降级为禁用检索而不阻塞启动；pgvector 失败视为启动失败。
func ProvideVectorBackend(ctx context.Context, cfg *config.Config, pg *postgres.Client) (*VectorBackend, func(), error) {
	dim := cfg.Vector.Dimension
	switch cfg.Vector.Backend {
	case config.VectorBackendMilvus:
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			logger.Warn(ctx, "milvus not available, vector features disabled", "error", err.Error())
			return &VectorBackend{Name: config.VectorBackendMilvus}, func() {}, nil
		}
		store := milvus.NewVectorStore(client, dim)
		if err := store.EnsureCollection(ctx); err != nil {
			logger.Warn(ctx, "milvus collection not ready, vector features disabled", "error", err.Error())
			_ = client.Close()
			return &VectorBackend{Name: config.VectorBackendMilvus}, func() {}, nil
		}
		cleanup := func() {
			_ = client.Close()
		}
		return &VectorBackend{Store: store, Name: store.Backend(), Health: client}, cleanup, nil

	case config.VectorBackendPGVector:
		store := postgres.NewVectorStore(pg, dim)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("prepare pgvector schema: %w", err)
		}
		return &VectorBackend{Store: store, Name: store.Backend()}, func() {}, nil

	case config.VectorBackendMemory:
		store := memory.NewVectorStore()
		return &VectorBackend{Store: store, Name: store.Backend()}, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported vector backend: %q", cfg.Vector.Backend)
}

// ProvideResiliencePolicy 外部供应商调用的重试策略
func ProvideResiliencePolicy(cfg *config.Config) resilience.Policy {
	return resilience.Policy{
		MaxRetries:     cfg.Resilience.MaxRetries,
		BaseDelay:      cfg.Resilience.BaseDelay,
		MaxDelay:       cfg.Resilience.MaxDelay,
		AttemptTimeout: cfg.Resilience.AttemptTimeout,
	}
}

// ProvideEmbeddingProvider 向量化后端 + 重试 + 查询向量缓存。
// 后端不可用时返回 nil，检索与索引随之禁用。
func ProvideEmbeddingProvider(ctx context.Context, cfg *config.Config, cache *redis.Cache, policy resilience.Policy) service.EmbeddingProvider {
	var backend infraembedding.Backend
	switch cfg.Embedding.Provider {
	case "http":
		backend = infraembedding.NewClient(&cfg.Embedding)
	default:
		embedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
		if err != nil {
			logger.Warn(ctx, "embedding not available, vector features disabled", "error", err.Error())
			return nil
		}
		backend = infraembedding.NewEinoBackend(embedder)
	}

	provider := infraembedding.NewProvider(backend, policy, cfg.Embedding.Dimension)
	if cache == nil || cfg.Embedding.CacheTTL <= 0 {
		return provider
	}
	return infraembedding.NewCachedProvider(provider, cache, cfg.Embedding.Model, cfg.Embedding.CacheTTL)
}

// ProvideCompletionProvider Eino ChatModel 补全
func ProvideCompletionProvider(cfg *config.Config, policy resilience.Policy) service.CompletionProvider {
	factory := llm.NewEinoFactory(cfg)
	return llm.NewCompletionClient(factory, factory.DefaultProvider(), policy)
}

// ProvideGuardrails 内置规则表编译失败属于程序错误
func ProvideGuardrails() *safety.Guardrails {
	return safety.NewGuardrails(safety.NewClassifier(safety.MustNewRegistry(safety.DefaultRules)))
}

// ProvideAuditor 审计关闭时不发布任何事件；cleanup 等待在途事件发布完成
func ProvideAuditor(cfg *config.Config, producer *messaging.Producer) (*safety.Auditor, func()) {
	var auditor *safety.Auditor
	if !cfg.Audit.Enabled || producer == nil {
		auditor = safety.NewAuditor(nil, cfg.Audit.PublishTimeout)
	} else {
		auditor = safety.NewAuditor(producer, cfg.Audit.PublishTimeout)
	}
	return auditor, auditor.Wait
}

// ProvideRetriever 检索边界来自对话配置
func ProvideRetriever(cfg *config.Config, vb *VectorBackend) *retrieval.Retriever {
	return retrieval.NewRetriever(vb.Store, retrieval.Options{
		DefaultTopK: cfg.Chat.DefaultTopK,
		MaxTopK:     cfg.Chat.MaxTopK,
	})
}

// ProvideIndexer 切分 + 向量化 + 写入
func ProvideIndexer(cfg *config.Config, embedder service.EmbeddingProvider, vb *VectorBackend) *retrieval.Indexer {
	chunker := chunking.New(chunking.Config{
		TargetSize: cfg.Chunking.TargetSize,
		MaxSize:    cfg.Chunking.MaxSize,
		MinSize:    cfg.Chunking.MinSize,
	})
	return retrieval.NewIndexer(chunker, embedder, vb.Store, cfg.Embedding.BatchSize)
}

// ProvideChatOptions 对话生成参数
func ProvideChatOptions(cfg *config.Config) chat.Options {
	return chat.Options{
		Temperature:   cfg.Chat.Temperature,
		MaxTokens:     cfg.Chat.MaxTokens,
		MinScore:      cfg.Chat.MinScore,
		PreviewRunes:  cfg.Chat.PreviewRunes,
		SafetyEnabled: cfg.Chat.SafetyEnabled,
	}
}

// ProvideChatRateLimiter 基于 Redis 计数的每小时对话限流
func ProvideChatRateLimiter(cfg *config.Config, redisClient *redis.Client) *quota.ChatRateLimiter {
	return quota.NewChatRateLimiter(quota.NewRateLimiter(redis.NewCounterStore(redisClient)), cfg.Chat.RateLimitPerHour)
}

// ProvideTokenQuotaChecker 未配置日上限时返回 nil
func ProvideTokenQuotaChecker(cfg *config.Config, usageRepo *postgres.LLMUsageEventRepository) handler.TokenBudget {
	if cfg.Chat.DailyTokenLimit <= 0 {
		return nil
	}
	return quota.NewTokenQuotaChecker(usageRepo, cfg.Chat.DailyTokenLimit)
}

// ProvideConversations 对话历史持久化
func ProvideConversations(cfg *config.Config, svc *chat.Service, convs *postgres.ConversationRepository, msgs *postgres.ConversationMessageRepository, tx *postgres.TxManager) *chat.Conversations {
	return chat.NewConversations(svc, convs, msgs, tx, cfg.Chat.HistoryTurns)
}

// ProvideHealthHandler postgres 与 redis 为必需依赖，Milvus 可降级
func ProvideHealthHandler(pg *postgres.Client, redisClient *redis.Client, vb *VectorBackend) *handler.HealthHandler {
	deps := []handler.Dependency{
		{Name: "postgres", Checker: pg, Required: true},
		{Name: "redis", Checker: redisClient, Required: true},
	}
	if vb.Health != nil {
		deps = append(deps, handler.Dependency{Name: "milvus", Checker: vb.Health})
	}
	return handler.NewHealthHandler(Version, deps...)
}

// ProvideChatHandler 对话处理器
func ProvideChatHandler(convs *chat.Conversations, limiter *quota.ChatRateLimiter, budget handler.TokenBudget) *handler.ChatHandler {
	return handler.NewChatHandler(convs, limiter, budget)
}

// ProvideRetrievalHandler 会话检索与索引投递
func ProvideRetrievalHandler(retriever *retrieval.Retriever, embedder service.EmbeddingProvider, sessions *postgres.SessionRepository, producer *messaging.Producer, vb *VectorBackend) *handler.RetrievalHandler {
	return handler.NewRetrievalHandler(retriever, embedder, sessions, producer, vb.Name)
}

// ProvideRouter 组装 HTTP 路由
func ProvideRouter(cfg *config.Config, handlers *router.Handlers, limiter *quota.ChatRateLimiter) *router.Router {
	return router.New(cfg, handlers, limiter)
}

// Worker job-worker 的全部消费者
type Worker struct {
	Consumers []*messaging.Consumer
}

// Start 启动全部消费者
func (w *Worker) Start(ctx context.Context) error {
	for _, c := range w.Consumers {
		if err := c.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// MonitorDLQ 为每个消费者启动死信队列巡检
func (w *Worker) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	for _, c := range w.Consumers {
		go c.MonitorDLQ(ctx, alertThreshold)
	}
}

// Stop 停止全部消费者
func (w *Worker) Stop() {
	for _, c := range w.Consumers {
		c.Stop()
	}
}

// ProvideWorker 注册转写索引与审计归档消费者。
// 向量化或向量存储不可用时只运行审计归档。
func ProvideWorker(
	ctx context.Context,
	cfg *config.Config,
	redisClient *redis.Client,
	ingestion *retrieval.IngestionService,
	indexer *retrieval.Indexer,
	safetyEvents *postgres.SafetyEventRepository,
) *Worker {
	streamCfg := cfg.Messaging.RedisStream
	newConsumer := func(stream messaging.Stream, group messaging.ConsumerGroup) *messaging.Consumer {
		return messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
			Stream:        stream,
			Group:         group.WithPrefix(streamCfg.ConsumerGroupPrefix),
			ConsumerName:  hostnameConsumerName(),
			BlockTimeout:  streamCfg.BlockTimeout,
			ClaimInterval: streamCfg.ClaimInterval,
			RetryLimit:    streamCfg.RetryLimit,
			Backoff: messaging.BackoffConfig{
				Initial:    streamCfg.RetryBackoff.Initial,
				Max:        streamCfg.RetryBackoff.Max,
				Multiplier: streamCfg.RetryBackoff.Multiplier,
			},
		})
	}

	w := &Worker{}
	if indexer.Enabled() {
		c := newConsumer(messaging.StreamTranscriptReady, messaging.ConsumerGroupIndexer)
		c.RegisterHandler(messaging.TypeTranscriptReady, worker.TranscriptReadyHandler(ingestion))
		w.Consumers = append(w.Consumers, c)
	} else {
		logger.Warn(ctx, "vector indexing disabled, transcript_ready consumer not started")
	}

	audit := newConsumer(messaging.StreamSafetyAudit, messaging.ConsumerGroupAuditArchiver)
	audit.RegisterHandler(messaging.TypeSafetyEvent, worker.SafetyEventHandler(safetyEvents))
	w.Consumers = append(w.Consumers, audit)
	return w
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
