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
	ErrRegistrationRateLimited      = errors.New("registration rate limited")
	ErrRegistrationRedisUnavailable = errors.New("registration redis unavailable")
)

type RegistrationConfig struct {
	KeyPrefix   string
	MaxAttempts int
	Cooldown    time.Duration
}

// RegistrationLimiter throttles account creation per client IP. Every call
// to Enforce counts, successful or not.
type RegistrationLimiter struct {
	redis  redis.UniversalClient
	config RegistrationConfig
}

func NewRegistrationLimiter(redisClient redis.UniversalClient, cfg RegistrationConfig) *RegistrationLimiter {
	return &RegistrationLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *RegistrationLimiter) Enforce(ctx context.Context, ip string) error {
	if l == nil || l.redis == nil || l.config.MaxAttempts <= 0 || ip == "" {
		return nil
	}
	key := internal.PrefixKey(l.config.KeyPrefix, registrationIPKey(ip))
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistrationRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRegistrationRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxAttempts) {
		return ErrRegistrationRateLimited
	}

	return nil
}

func registrationIPKey(ip string) string {
	return "regip:" + internal.HashKeyPart(ip)
}
