package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulseapp/identity/internal"
	"github.com/redis/go-redis/v9"
)

var (
	ErrPinRateLimited = errors.New("tfa pin rate limited")
	ErrPinUnavailable = errors.New("tfa pin limiter unavailable")
)

// PinConfig bounds wrong TFA pins (TOTP or backup code) per user.
type PinConfig struct {
	KeyPrefix   string
	MaxAttempts int
	Cooldown    time.Duration
}

// PinLimiter counts failed TFA pin submissions per user in a fixed window.
type PinLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int
	cooldown    time.Duration
}

func NewPinLimiter(redisClient redis.UniversalClient, cfg PinConfig) *PinLimiter {
	return &PinLimiter{
		redis:       redisClient,
		prefix:      cfg.KeyPrefix,
		maxAttempts: cfg.MaxAttempts,
		cooldown:    cfg.Cooldown,
	}
}

func (l *PinLimiter) key(userID string) string {
	return internal.PrefixKey(l.prefix, "tfapin:"+userID)
}

func (l *PinLimiter) disabled() bool {
	return l == nil || l.redis == nil || l.maxAttempts <= 0
}

// Check returns [ErrPinRateLimited] once the user has used up the window.
func (l *PinLimiter) Check(ctx context.Context, userID string) error {
	if l.disabled() {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrPinUnavailable, err)
	}
	if int(count) >= l.maxAttempts {
		return ErrPinRateLimited
	}
	return nil
}

func (l *PinLimiter) RecordFailure(ctx context.Context, userID string) error {
	if l.disabled() {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPinUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(userID), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrPinUnavailable, err)
		}
	}
	if int(count) >= l.maxAttempts {
		return ErrPinRateLimited
	}
	return nil
}

func (l *PinLimiter) Reset(ctx context.Context, userID string) error {
	if l.disabled() {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPinUnavailable, err)
	}
	return nil
}
