package featureflags

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRefreshInterval is how often a [RedisSource] reloads its snapshot.
const DefaultRefreshInterval = 30 * time.Second

// RedisConfig configures a [RedisSource].
type RedisConfig struct {
	// Key is the hash holding flag name -> "true"/"false" (or 1/0).
	Key             string
	RefreshInterval time.Duration
	// Default answers flags that are missing from the hash, and every flag
	// before the first successful load.
	Default bool
}

// RedisSource serves flags from a periodically refreshed snapshot of a
// Redis hash.
type RedisSource struct {
	redis  redis.UniversalClient
	config RedisConfig
	logger *slog.Logger

	snapshot atomic.Pointer[map[string]bool]

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRedisSource creates a source. Call [RedisSource.Start] to begin
// polling.
func NewRedisSource(client redis.UniversalClient, cfg RedisConfig, logger *slog.Logger) (*RedisSource, error) {
	if client == nil {
		return nil, errors.New("featureflags: redis client is required")
	}
	cfg.Key = strings.TrimSpace(cfg.Key)
	if cfg.Key == "" {
		return nil, errors.New("featureflags: key is required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSource{
		redis:  client,
		config: cfg,
		logger: logger,
		stop:   make(chan struct{}),
	}, nil
}

// Start loads the flags once and then keeps refreshing them in the
// background until Close. A failed initial load is returned but polling
// still starts.
func (s *RedisSource) Start(ctx context.Context) error {
	err := s.Refresh(ctx)

	s.wg.Add(1)
	go s.loop()

	return err
}

func (s *RedisSource) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.config.RefreshInterval)
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("feature flag refresh failed", "error", err)
			}
			cancel()
		case <-s.stop:
			return
		}
	}
}

// Refresh reloads the snapshot from Redis. On error the previous snapshot
// stays in place.
func (s *RedisSource) Refresh(ctx context.Context) error {
	raw, err := s.redis.HGetAll(ctx, s.config.Key).Result()
	if err != nil {
		return err
	}

	next := make(map[string]bool, len(raw))
	for name, value := range raw {
		enabled, perr := strconv.ParseBool(strings.TrimSpace(value))
		if perr != nil {
			s.logger.Warn("ignoring malformed feature flag", "flag", name, "value", value)
			continue
		}
		next[name] = enabled
	}

	prev := s.snapshot.Swap(&next)
	if prev == nil || !sameFlags(*prev, next) {
		s.logger.Info("feature flags updated", "count", len(next))
	}
	return nil
}

func (s *RedisSource) IsEnabled(_ context.Context, flag string) bool {
	if s == nil {
		return true
	}
	snap := s.snapshot.Load()
	if snap == nil {
		return s.config.Default
	}
	if v, ok := (*snap)[flag]; ok {
		return v
	}
	return s.config.Default
}

// Close stops the refresh loop. It is safe to call more than once.
func (s *RedisSource) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

func sameFlags(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
