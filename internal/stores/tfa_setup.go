package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTFASetupTTL is the lifetime of a pending enrollment.
const DefaultTFASetupTTL = 5 * time.Minute

var (
	ErrTFASetupNotFound = errors.New("tfa setup not found")
	ErrTFASetupBackend  = errors.New("tfa setup backend unavailable")
)

// TFASetupStore holds one candidate TOTP secret per user between "begin"
// and "confirm". Entries expire a fixed time after Begin; reads never
// extend them.
type TFASetupStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewTFASetupStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *TFASetupStore {
	if prefix == "" {
		prefix = "tfa:setup"
	}
	if ttl <= 0 {
		ttl = DefaultTFASetupTTL
	}
	return &TFASetupStore{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *TFASetupStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// TTL returns the configured entry lifetime.
func (s *TFASetupStore) TTL() time.Duration {
	return s.ttl
}

// Begin stores secret for userID, replacing any pending entry and
// restarting its lifetime.
func (s *TFASetupStore) Begin(ctx context.Context, userID, secret string) error {
	if err := s.redis.Set(ctx, s.key(userID), secret, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTFASetupBackend, err)
	}
	return nil
}

// Peek returns the pending secret without touching its expiry.
func (s *TFASetupStore) Peek(ctx context.Context, userID string) (string, error) {
	secret, err := s.redis.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTFASetupNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrTFASetupBackend, err)
	}
	return secret, nil
}

// Clear drops the pending entry once enrollment completes.
func (s *TFASetupStore) Clear(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTFASetupBackend, err)
	}
	return nil
}
