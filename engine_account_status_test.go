package identity

import (
	"context"
	"errors"
	"testing"
)

func TestDisableAccountRevokesSessionsAndBlocksLogin(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) {
		cfg.Metrics.Enabled = true
	})
	ctx := context.Background()

	first := env.register(t, "ada@example.com", "ada")
	second, err := env.engine.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "Correct-horse-1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := env.engine.DisableAccount(ctx, first.UserID); err != nil {
		t.Fatalf("DisableAccount: %v", err)
	}

	for _, token := range []string{first.AccessToken, second.AccessToken} {
		if _, _, err := env.engine.GetAuthenticatedUser(ctx, token); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected revoked session, got %v", err)
		}
	}

	_, err = env.engine.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "Correct-horse-1"})
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricSessionRevoked]; got != 2 {
		t.Fatalf("session revoked counter = %d, want 2", got)
	}
}

func TestEnableAccountRestoresLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res := env.register(t, "ada@example.com", "ada")
	if err := env.engine.DisableAccount(ctx, res.UserID); err != nil {
		t.Fatalf("DisableAccount: %v", err)
	}
	if err := env.engine.EnableAccount(ctx, res.UserID); err != nil {
		t.Fatalf("EnableAccount: %v", err)
	}

	if _, err := env.engine.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "Correct-horse-1"}); err != nil {
		t.Fatalf("Login after enable: %v", err)
	}
	if _, _, err := env.engine.GetAuthenticatedUser(ctx, res.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("session revoked by disable should stay revoked, got %v", err)
	}
}

func TestDisableAccountUnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.engine.DisableAccount(context.Background(), "404"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := env.engine.DisableAccount(context.Background(), ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for empty id, got %v", err)
	}
}
