package flows

import (
	"context"

	"github.com/pulseapp/identity/session"
)

type SessionMetrics struct {
	Revoked int
	Logout  int
}

type SessionEvents struct {
	Logout        string
	DeviceRevoked string
}

type SessionErrors struct {
	EngineNotReady  error
	Unauthenticated error
	DeviceNotFound  error
}

type SessionDeps struct {
	RevokeSession func(context.Context, *session.Session) error
	ListForUser   func(context.Context, string) ([]*session.Session, error)

	MetricInc func(int)
	EmitAudit EmitAuditFunc

	Metrics SessionMetrics
	Events  SessionEvents
	Errors  SessionErrors
}

// RunLogout revokes the caller's own session.
func RunLogout(ctx context.Context, sess *session.Session, deps SessionDeps) error {
	normalizeSessionDeps(&deps)

	if deps.RevokeSession == nil {
		return deps.Errors.EngineNotReady
	}
	if sess == nil {
		return deps.Errors.Unauthenticated
	}
	if err := deps.RevokeSession(ctx, sess); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.Logout)
	deps.MetricInc(deps.Metrics.Revoked)
	deps.EmitAudit(ctx, deps.Events.Logout, true, sess.UserID, sess.ID, nil, nil)
	return nil
}

// RunRevokeDevice revokes one session belonging to the caller. Sessions of
// other users are reported as not found.
func RunRevokeDevice(ctx context.Context, current *session.Session, deviceID string, deps SessionDeps) error {
	normalizeSessionDeps(&deps)

	if deps.RevokeSession == nil || deps.ListForUser == nil {
		return deps.Errors.EngineNotReady
	}
	if current == nil {
		return deps.Errors.Unauthenticated
	}

	sessions, err := deps.ListForUser(ctx, current.UserID)
	if err != nil {
		return err
	}

	var target *session.Session
	for _, s := range sessions {
		if s.ID == deviceID {
			target = s
			break
		}
	}
	if target == nil {
		return deps.Errors.DeviceNotFound
	}

	if err := deps.RevokeSession(ctx, target); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.Revoked)
	deps.EmitAudit(ctx, deps.Events.DeviceRevoked, true, current.UserID, current.ID, nil, func() map[string]string {
		return map[string]string{
			"device_id": deviceID,
			"current":   boolString(target.ID == current.ID),
		}
	})
	return nil
}

func normalizeSessionDeps(deps *SessionDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
