package redis

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNewRedisClientRejectsBadSettings(t *testing.T) {
	ctx := context.Background()

	if _, err := NewRedisClient(ctx, "  ", "", 0); err == nil {
		t.Fatal("expected error for empty addr")
	}
	if _, err := NewRedisClient(ctx, "127.0.0.1:6379", "", -1); err == nil {
		t.Fatal("expected error for negative db")
	}
}

func TestNewRedisClientPingFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedisClient(ctx, "127.0.0.1:1", "", 0)
	if err == nil {
		t.Fatal("expected ping error for closed port")
	}
	if !strings.Contains(err.Error(), "127.0.0.1:1") {
		t.Fatalf("error should name the address: %v", err)
	}
}
