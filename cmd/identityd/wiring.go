package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pulseapp/identity"
	"github.com/pulseapp/identity/internal/config"
	"github.com/pulseapp/identity/jwt"
	"github.com/pulseapp/identity/onboarding"
	"github.com/pulseapp/identity/store/memory"
	"github.com/pulseapp/identity/store/mongo"
	"github.com/pulseapp/identity/store/postgres"
)

const connectTimeout = 10 * time.Second

// openUserStore connects the configured user directory. The returned
// closer is always safe to call.
func openUserStore(ctx context.Context, cfg config.Service) (identity.UserStore, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch strings.ToLower(cfg.UserStore) {
	case config.StoreMongo:
		store, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect mongo: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, func() {}, fmt.Errorf("mongo indexes: %w", err)
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			_ = store.Close(closeCtx)
		}, nil

	case config.StorePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, func() {}, fmt.Errorf("open postgres: %w", err)
		}
		return store, func() { _ = store.Close() }, nil

	case config.StoreMemory:
		return memory.New(), func() {}, nil
	}

	return nil, func() {}, fmt.Errorf("unknown user store %q", cfg.UserStore)
}

// newOnboarder returns nil when no organizations service is configured.
func newOnboarder(cfg config.Service) (identity.Onboarder, error) {
	if cfg.OnboardingURL == "" {
		return nil, nil
	}

	key, err := os.ReadFile(cfg.OnboardingKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read onboarding key: %w", err)
	}

	signer, err := jwt.NewManager(jwt.Config{
		TTL:           time.Minute,
		SigningMethod: jwt.MethodEd25519,
		PrivateKey:    key,
		Issuer:        "identity",
		Audience:      "organizations",
	})
	if err != nil {
		return nil, fmt.Errorf("onboarding signer: %w", err)
	}

	client, err := onboarding.NewClient(cfg.OnboardingURL, signer, nil)
	if err != nil {
		return nil, err
	}
	return client, nil
}
