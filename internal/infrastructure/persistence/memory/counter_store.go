package memory

import (
	"context"
	"sync"
	"time"

	"therapy-chat-api/internal/application/quota"
)

type counter struct {
	value     int64
	expiresAt time.Time
}

// CounterStore 进程内固定窗口计数，语义与 Redis INCR + EXPIRE NX 一致
type CounterStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

func NewCounterStore() *CounterStore {
	return NewCounterStoreWithClock(time.Now)
}

// NewCounterStoreWithClock 用于测试窗口过期
func NewCounterStoreWithClock(now func() time.Time) *CounterStore {
	return &CounterStore{counters: make(map[string]*counter), now: now}
}

var _ quota.RateLimitStore = (*CounterStore)(nil)

// live 调用方需持有锁
func (s *CounterStore) live(key string) *counter {
	c, ok := s.counters[key]
	if !ok {
		return nil
	}
	if !s.now().Before(c.expiresAt) {
		delete(s.counters, key)
		return nil
	}
	return c
}

func (s *CounterStore) IncrWithExpiry(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c := s.live(key)
	if c == nil {
		c = &counter{expiresAt: now.Add(window)}
		s.counters[key] = c
	}
	c.value++
	return c.value, c.expiresAt.Sub(now), nil
}

func (s *CounterStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.live(key); c != nil {
		return c.value, nil
	}
	return 0, nil
}

func (s *CounterStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.live(key); c != nil {
		return c.expiresAt.Sub(s.now()), nil
	}
	return -1, nil
}

func (s *CounterStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}
