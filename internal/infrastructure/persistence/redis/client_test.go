package redis

import (
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"therapy-chat-api/internal/config"
)

func TestOptions(t *testing.T) {
	opts := Options(&config.RedisConfig{
		Host:        "cache.internal",
		Port:        6380,
		DB:          2,
		PoolSize:    40,
		DialTimeout: 2 * time.Second,
	})
	if opts.Addr != "cache.internal:6380" || opts.DB != 2 || opts.PoolSize != 40 {
		t.Fatalf("opts=%+v", opts)
	}
	if opts.DialTimeout != 2*time.Second {
		t.Fatalf("dial timeout=%v", opts.DialTimeout)
	}
}

func TestIsNil(t *testing.T) {
	if !IsNil(goredis.Nil) || !IsNil(fmt.Errorf("get: %w", goredis.Nil)) {
		t.Fatalf("wrapped redis.Nil should match")
	}
	if IsNil(nil) || IsNil(fmt.Errorf("boom")) {
		t.Fatalf("other errors should not match")
	}
}
