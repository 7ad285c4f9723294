package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/vyvu99/mcp-server/storage"
	"github.com/vyvu99/mcp-server/storage/storagetest"
)

func TestRedisStorage(t *testing.T) {
	// Skip test if Redis is not available
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379", DB: 2})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	_ = client.Close()

	storagetest.Run(t, func(t *testing.T) storage.Storage {
		ctx := context.Background()
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379", DB: 2})
		if err := client.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		s, err := NewWithClient(ctx, client, "mcp:test:")
		if err != nil {
			t.Fatalf("Failed to create Redis storage: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewFromEnv_Unreachable(t *testing.T) {
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Fatalf("expected ping failure for unreachable address")
	}
}
