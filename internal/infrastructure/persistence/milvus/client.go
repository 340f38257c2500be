// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"therapy-chat-api/internal/config"
)

var tracer = otel.Tracer("milvus")

const dialTimeout = 10 * time.Second

// hnswParams 建索引与检索参数，零值已替换为默认值
type hnswParams struct {
	m              int
	efConstruction int
	searchEf       int
}

func hnswFrom(cfg *config.MilvusConfig) hnswParams {
	p := hnswParams{m: 16, efConstruction: 200, searchEf: defaultSearchEf}
	if cfg.HNSWM > 0 {
		p.m = cfg.HNSWM
	}
	if cfg.HNSWEfConstruction > 0 {
		p.efConstruction = cfg.HNSWEfConstruction
	}
	if cfg.SearchEf > 0 {
		p.searchEf = cfg.SearchEf
	}
	return p
}

// Client 单个 session_chunks 集合的连接
type Client struct {
	milvus     client.Client
	collection string
	hnsw       hnswParams
}

// NewClient 连接 Milvus；仅在用户名与密码都配置时启用认证
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mcfg := client.Config{Address: addr}
	if cfg.User != "" && cfg.Password != "" {
		mcfg.Username, mcfg.Password = cfg.User, cfg.Password
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	mc, err := client.NewClient(dialCtx, mcfg)
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s: %w", addr, err)
	}

	coll := cfg.Collection
	if coll == "" {
		coll = CollectionSessionChunks
	}
	return &Client{milvus: mc, collection: coll, hnsw: hnswFrom(cfg)}, nil
}

func (c *Client) Close() error { return c.milvus.Close() }

// HealthCheck 以 HasCollection 探测连通性，集合不存在不算失败
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	if _, err := c.milvus.HasCollection(ctx, c.collection); err != nil {
		span.RecordError(err)
		return fmt.Errorf("milvus health: %w", err)
	}
	return nil
}

// Collection 集合名
func (c *Client) Collection() string { return c.collection }

// LoadCollection 同步加载集合，返回后即可检索
func (c *Client) LoadCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", c.collection)))
	defer span.End()

	if err := c.milvus.LoadCollection(ctx, c.collection, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("load collection %s: %w", c.collection, err)
	}
	return nil
}
