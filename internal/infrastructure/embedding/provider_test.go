package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"therapy-chat-api/internal/config"
	"therapy-chat-api/pkg/resilience"
)

func fastPolicy() resilience.Policy {
	return resilience.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestProvider_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := embedResponse{}
		for range req.Texts {
			out.Embeddings = append(out.Embeddings, []float32{0.1, 0.2, 0.3})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	p := NewProvider(NewClient(&config.EmbeddingConfig{Endpoint: srv.URL}), fastPolicy(), 3)
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("vecs=%d calls=%d", len(vecs), calls)
	}
}

func TestProvider_BadRequestIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewProvider(NewClient(&config.EmbeddingConfig{Endpoint: srv.URL}), fastPolicy(), 0)
	_, err := p.Embed(context.Background(), "hello")
	pe, ok := resilience.AsProviderError(err)
	if !ok || pe.Retryable || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestProvider_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2}}})
	}))
	defer srv.Close()

	p := NewProvider(NewClient(&config.EmbeddingConfig{Endpoint: srv.URL}), fastPolicy(), 3)
	if _, err := p.Embed(context.Background(), "hello"); err == nil {
		t.Fatalf("want dimension error")
	}
}

type mapCache struct {
	data  map[string][]byte
	loads int
}

func (m *mapCache) GetOrLoad(ctx context.Context, key string, _ time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	m.loads++
	b, err := load(ctx)
	if err != nil {
		return nil, err
	}
	m.data[key] = b
	return b, nil
}

type countingProvider struct{ embeds, batches int }

func (c *countingProvider) Embed(context.Context, string) ([]float32, error) {
	c.embeds++
	return []float32{1, 0}, nil
}

func (c *countingProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.batches++
	return make([][]float32, len(texts)), nil
}

func TestCachedProvider(t *testing.T) {
	next := &countingProvider{}
	cache := &mapCache{data: map[string][]byte{}}
	p := NewCachedProvider(next, cache, "m1", 0)

	for i := 0; i < 3; i++ {
		v, err := p.Embed(context.Background(), "same question")
		if err != nil || len(v) != 2 {
			t.Fatalf("v=%v err=%v", v, err)
		}
	}
	if next.embeds != 1 {
		t.Fatalf("embeds=%d, want 1", next.embeds)
	}
	_, _ = p.EmbedBatch(context.Background(), []string{"a", "b"})
	if next.batches != 1 || cache.loads != 1 {
		t.Fatalf("batch should bypass cache: batches=%d loads=%d", next.batches, cache.loads)
	}
	if CacheKey("m1", "x") == CacheKey("m2", "x") {
		t.Fatalf("cache key must include model")
	}
}
