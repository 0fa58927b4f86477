package featureflags

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestSource(t *testing.T, cfg RedisConfig) (*miniredis.Miniredis, *RedisSource) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	src, err := NewRedisSource(rdb, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRedisSource failed: %v", err)
	}
	t.Cleanup(src.Close)
	return mr, src
}

func TestRedisSourceDefaultBeforeLoad(t *testing.T) {
	_, src := newTestSource(t, RedisConfig{Key: "flags", Default: true})
	if !src.IsEnabled(context.Background(), "user-registration") {
		t.Fatal("expected default before first load")
	}
}

func TestRedisSourceRefresh(t *testing.T) {
	mr, src := newTestSource(t, RedisConfig{Key: "flags", Default: true})
	mr.HSet("flags", "user-registration", "false", "org-creation", "1", "broken", "maybe")

	if err := src.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	ctx := context.Background()
	if src.IsEnabled(ctx, "user-registration") {
		t.Fatal("expected user-registration disabled")
	}
	if !src.IsEnabled(ctx, "org-creation") {
		t.Fatal("expected org-creation enabled")
	}
	if !src.IsEnabled(ctx, "broken") || !src.IsEnabled(ctx, "unknown") {
		t.Fatal("expected malformed and unknown flags to use the default")
	}
}

func TestRedisSourceKeepsSnapshotOnError(t *testing.T) {
	mr, src := newTestSource(t, RedisConfig{Key: "flags"})
	mr.HSet("flags", "org-creation", "true")
	if err := src.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	mr.SetError("boom")
	if err := src.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	mr.SetError("")

	if !src.IsEnabled(context.Background(), "org-creation") {
		t.Fatal("expected previous snapshot to survive a failed refresh")
	}
}

func TestRedisSourcePolls(t *testing.T) {
	mr, src := newTestSource(t, RedisConfig{Key: "flags", RefreshInterval: 20 * time.Millisecond})
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	mr.HSet("flags", "status-page-creation", "true")

	deadline := time.Now().Add(2 * time.Second)
	for !src.IsEnabled(context.Background(), "status-page-creation") {
		if time.Now().After(deadline) {
			t.Fatal("expected poll to pick up the new flag")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStatic(t *testing.T) {
	s := Static{Flags: map[string]bool{"a": false}, Default: true}
	if s.IsEnabled(context.Background(), "a") || !s.IsEnabled(context.Background(), "b") {
		t.Fatal("unexpected static answers")
	}
}

func TestNewRedisSourceRequiresKey(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	if _, err := NewRedisSource(rdb, RedisConfig{Key: "  "}, nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}
