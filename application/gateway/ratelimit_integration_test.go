//go:build integration
// +build integration

package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

func TestRedisLimiter(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	l, err := NewRedisLimiter(addr, 3, 500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	ctx := context.Background()
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("request %d rejected", i)
		}
	}
	if ok, _ := l.Allow(ctx, key); ok {
		t.Fatal("Expect the fourth request in the window to be rejected")
	}
	time.Sleep(600 * time.Millisecond)
	if ok, _ := l.Allow(ctx, key); !ok {
		t.Error("Expect a new window")
	}
}
