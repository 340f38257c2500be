// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"therapy-chat-api/internal/config"
	"therapy-chat-api/pkg/resilience"
)

const (
	defaultHTTPModel = "BAAI/bge-m3"
	httpTimeout      = 30 * time.Second
	errBodyLimit     = 512
)

var errNoEndpoint = errors.New("embedding endpoint is not configured")

var _ Backend = (*Client)(nil)

// Client 自建向量化服务的 HTTP 客户端。协议：
// POST {endpoint}/embed {"texts": [...], "model": "..."} -> {"embeddings": [[...]], "tokens_used": n}
type Client struct {
	url    string
	urlErr error
	model  string
	apiKey string
	http   *http.Client
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	TokensUsed int         `json:"tokens_used"`
}

// NewClient endpoint 无效时不报错，首次调用时返回该错误
func NewClient(cfg *config.EmbeddingConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = defaultHTTPModel
	}
	u, err := embedURL(cfg.Endpoint)
	return &Client{
		url:    u,
		urlErr: err,
		model:  model,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: httpTimeout},
	}
}

// embedURL 缺省路径补为 /embed，已带路径时原样使用
func embedURL(endpoint string) (string, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return "", errNoEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid embedding endpoint %q: %w", endpoint, err)
	}
	if u.Path == "" {
		u.Path = "/embed"
	}
	return u.String(), nil
}

func (c *Client) Name() string { return "http" }

// EmbedTexts 非 2xx 以 resilience.StatusError 返回，由重试策略分类
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if c.urlErr != nil {
		return nil, c.urlErr
	}

	body, err := json.Marshal(embedRequest{Texts: texts, Model: c.model})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return nil, &resilience.StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	return out.Embeddings, nil
}
