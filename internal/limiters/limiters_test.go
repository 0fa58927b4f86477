package limiters

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

func TestPinLimiterLocksAfterMaxFailures(t *testing.T) {
	rdb, mr := newRedis(t)
	l := NewPinLimiter(rdb, PinConfig{MaxAttempts: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, "u1"); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
	}
	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("expected still allowed, got %v", err)
	}
	if err := l.RecordFailure(ctx, "u1"); !errors.Is(err, ErrPinRateLimited) {
		t.Fatalf("expected limited on third failure, got %v", err)
	}
	if err := l.Check(ctx, "u1"); !errors.Is(err, ErrPinRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}
	if err := l.Check(ctx, "u2"); err != nil {
		t.Fatalf("other user must pass, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestPinLimiterReset(t *testing.T) {
	rdb, _ := newRedis(t)
	l := NewPinLimiter(rdb, PinConfig{MaxAttempts: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "u1")
	if err := l.Reset(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("expected allowed after reset, got %v", err)
	}
}

func TestPinLimiterNilSafe(t *testing.T) {
	var l *PinLimiter
	ctx := context.Background()
	if err := l.Check(ctx, "u"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordFailure(ctx, "u"); err != nil {
		t.Fatal(err)
	}
	if err := l.Reset(ctx, "u"); err != nil {
		t.Fatal(err)
	}
}

func TestRegistrationLimiterPerIP(t *testing.T) {
	rdb, _ := newRedis(t)
	l := NewRegistrationLimiter(rdb, RegistrationConfig{MaxAttempts: 2, Cooldown: time.Hour})
	ctx := context.Background()

	if err := l.Enforce(ctx, "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Enforce(ctx, "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Enforce(ctx, "10.0.0.1"); !errors.Is(err, ErrRegistrationRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}
	if err := l.Enforce(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("other IP must pass, got %v", err)
	}
	if err := l.Enforce(ctx, ""); err != nil {
		t.Fatalf("unknown IP is not throttled, got %v", err)
	}
}

func TestRegistrationLimiterRedisDown(t *testing.T) {
	rdb, mr := newRedis(t)
	l := NewRegistrationLimiter(rdb, RegistrationConfig{MaxAttempts: 2, Cooldown: time.Hour})
	mr.Close()
	if err := l.Enforce(context.Background(), "10.0.0.1"); !errors.Is(err, ErrRegistrationRedisUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestLimiterKeysAreNamespaced(t *testing.T) {
	rdb, mr := newRedis(t)
	ctx := context.Background()

	pinBlue := NewPinLimiter(rdb, PinConfig{KeyPrefix: "blue", MaxAttempts: 1, Cooldown: time.Minute})
	pinGreen := NewPinLimiter(rdb, PinConfig{KeyPrefix: "green", MaxAttempts: 1, Cooldown: time.Minute})
	_ = pinBlue.RecordFailure(ctx, "u1")
	if err := pinBlue.Check(ctx, "u1"); !errors.Is(err, ErrPinRateLimited) {
		t.Fatalf("expected blue pin limited, got %v", err)
	}
	if err := pinGreen.Check(ctx, "u1"); err != nil {
		t.Fatalf("green pin limiter must be independent, got %v", err)
	}

	regBlue := NewRegistrationLimiter(rdb, RegistrationConfig{KeyPrefix: "blue", MaxAttempts: 1, Cooldown: time.Hour})
	regGreen := NewRegistrationLimiter(rdb, RegistrationConfig{KeyPrefix: "green", MaxAttempts: 1, Cooldown: time.Hour})
	if err := regBlue.Enforce(ctx, "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if err := regGreen.Enforce(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("green registration limiter must be independent, got %v", err)
	}

	for _, key := range mr.Keys() {
		if !strings.HasPrefix(key, "blue:") && !strings.HasPrefix(key, "green:") {
			t.Fatalf("key %q escaped its namespace", key)
		}
	}
}
