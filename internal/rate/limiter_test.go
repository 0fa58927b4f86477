package rate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, cfg), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestLoginLimiterBlocksAfterMaxFailures(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{MaxLoginAttempts: 3, LoginCooldownDuration: time.Minute})
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "alice@example.com", ""); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i, err)
		}
		_ = l.IncrementLogin(ctx, "alice@example.com", "")
	}
	if err := l.CheckLogin(ctx, "Alice@Example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "bob@example.com", ""); err != nil {
		t.Fatalf("other email must not be limited: %v", err)
	}
}

func TestLoginLimiterWindowExpires(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	defer done()
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "alice@example.com", "")
	if err := l.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("expected window to reset, got %v", err)
	}
}

func TestLoginLimiterIPThrottle(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{EnableIPThrottle: true, MaxLoginAttempts: 2, LoginCooldownDuration: time.Minute})
	defer done()
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@example.com", "10.0.0.1")
	_ = l.IncrementLogin(ctx, "b@example.com", "10.0.0.1")
	if err := l.CheckLogin(ctx, "c@example.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c@example.com", "10.0.0.2"); err != nil {
		t.Fatalf("other IP must pass, got %v", err)
	}
}

func TestLoginLimiterReset(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{MaxLoginAttempts: 5, LoginCooldownDuration: time.Minute})
	defer done()
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "alice@example.com", "")
	_ = l.IncrementLogin(ctx, "alice@example.com", "")
	if n, _ := l.GetLoginAttempts(ctx, "alice@example.com"); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
	if err := l.ResetLogin(ctx, "alice@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := l.GetLoginAttempts(ctx, "alice@example.com"); n != 0 {
		t.Fatalf("expected 0 attempts after reset, got %d", n)
	}
}

func TestLoginLimiterDisabledWhenZero(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{})
	defer done()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := l.IncrementLogin(ctx, "x@example.com", ""); err != nil {
			t.Fatalf("disabled limiter returned %v", err)
		}
	}
	if err := l.CheckLogin(ctx, "x@example.com", ""); err != nil {
		t.Fatalf("disabled limiter returned %v", err)
	}
}

func TestLoginLimiterKeysAreNamespaced(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	blue := New(rdb, Config{KeyPrefix: "blue", MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	green := New(rdb, Config{KeyPrefix: "green", MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})

	_ = blue.IncrementLogin(ctx, "alice@example.com", "")
	if err := blue.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected blue limited, got %v", err)
	}
	if err := green.CheckLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("green must not share blue's counter, got %v", err)
	}
	for _, key := range mr.Keys() {
		if !strings.HasPrefix(key, "blue:rl:login:") {
			t.Fatalf("unexpected key %q", key)
		}
	}
}
