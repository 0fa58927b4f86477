package identity

import (
	"context"
	"time"
)

const (
	auditEventRegisterSuccess     = "register_success"
	auditEventRegisterFailure     = "register_failure"
	auditEventRegisterDuplicate   = "register_duplicate"
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginRateLimited    = "login_rate_limited"
	auditEventCaptchaRejected     = "captcha_rejected"
	auditEventTFARequired         = "tfa_required"
	auditEventTFAPinSuccess       = "tfa_pin_success"
	auditEventTFAPinFailure       = "tfa_pin_failure"
	auditEventBackupCodeUsed      = "backup_code_used"
	auditEventTFASetupRequested   = "tfa_setup_requested"
	auditEventTFAEnabled          = "tfa_enabled"
	auditEventTFAEnableFailure    = "tfa_enable_failure"
	auditEventTFADisabled         = "tfa_disabled"
	auditEventLogout              = "logout"
	auditEventDeviceRevoked       = "device_revoked"
	auditEventSessionsRevoked     = "sessions_revoked"
	auditEventOnboardingCompleted = "onboarding_completed"
	auditEventOnboardingFailure   = "onboarding_failure"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Country:   geoFromContext(ctx).Country,
		Success:   success,
		Error:     ErrorCode(err),
		Metadata:  metadata,
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	userID string,
	metadataBuilder func() map[string]string,
) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, userID, "", ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
