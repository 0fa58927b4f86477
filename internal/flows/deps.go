package flows

import (
	"context"
	"time"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Register RegisterDeps
	Login    LoginDeps
	Pin      PinDeps
	TFA      TFADeps
	Session  SessionDeps
}

// IssuedSession is the flow-local view of a freshly minted session. It is
// the only value that carries plaintext tokens.
type IssuedSession struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// EmitAuditFunc records one audit event. The metadata builder is invoked
// only when auditing is enabled.
type EmitAuditFunc func(ctx context.Context, eventType string, success bool, userID, sessionID string, err error, metadata func() map[string]string)

// EmitRateLimitFunc records a throttling decision.
type EmitRateLimitFunc func(ctx context.Context, scope, userID string, metadata func() map[string]string)

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

func noopRateLimit(context.Context, string, string, func() map[string]string) {}

func noopMetric(int) {}
