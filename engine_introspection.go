package identity

import (
	"context"
	"time"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Health pings Redis. It never returns an error; an unreachable backend is
// reported through RedisAvailable.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	latency, err := e.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
}

// ActiveSessionCount reports how many live sessions the owner of sess has,
// including sess itself.
func (e *Engine) ActiveSessionCount(ctx context.Context, sess *Session) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	if sess == nil {
		return 0, ErrUnauthenticated
	}
	sessions, err := e.sessionStore.ListForUser(ctx, sess.UserID)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

// LoginAttempts returns the failed login counter for email within the
// current cooldown window.
func (e *Engine) LoginAttempts(ctx context.Context, email string) (int, error) {
	if e == nil || e.loginLimiter == nil {
		return 0, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return 0, nil
	}
	n, err := e.loginLimiter.GetLoginAttempts(ctx, email)
	if err != nil {
		return 0, e.mapLimiterError(err)
	}
	return n, nil
}
