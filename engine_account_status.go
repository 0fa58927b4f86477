package identity

import (
	"context"
	"strconv"
)

const auditEventAccountStatusChanged = "account_status_changed"

// DisableAccount sets [FlagDisabled] on userID and revokes every session
// the account holds. Later logins fail with [ErrAccountDisabled].
func (e *Engine) DisableAccount(ctx context.Context, userID string) error {
	revoked, err := e.setAccountDisabled(ctx, userID, true)
	e.emitAudit(ctx, auditEventAccountStatusChanged, err == nil, userID, "", err, func() map[string]string {
		return map[string]string{
			"action":  "disable",
			"revoked": strconv.Itoa(revoked),
		}
	})
	return err
}

// EnableAccount clears [FlagDisabled]. Sessions revoked while the account
// was disabled stay revoked.
func (e *Engine) EnableAccount(ctx context.Context, userID string) error {
	_, err := e.setAccountDisabled(ctx, userID, false)
	e.emitAudit(ctx, auditEventAccountStatusChanged, err == nil, userID, "", err, func() map[string]string {
		return map[string]string{"action": "enable"}
	})
	return err
}

func (e *Engine) setAccountDisabled(ctx context.Context, userID string, disabled bool) (int, error) {
	if e == nil || e.users == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}

	if !disabled {
		return 0, e.users.ClearFlags(ctx, userID, FlagDisabled)
	}

	if err := e.users.SetFlags(ctx, userID, FlagDisabled); err != nil {
		return 0, err
	}
	n, err := e.sessionStore.RevokeAllForUser(ctx, userID, "")
	if err != nil {
		return 0, err
	}
	e.metricAdd(MetricSessionRevoked, uint64(n))
	return n, nil
}
