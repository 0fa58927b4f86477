package flows

import (
	"context"
	"errors"
)

// TFAUser is the second-factor view of an account.
type TFAUser struct {
	ID             string
	Username       string
	TFAEnabled     bool
	Secret         string
	BackupCodeSalt string
}

type PinMetrics struct {
	Success        int
	Failure        int
	RateLimited    int
	BackupCodeUsed int
}

type PinEvents struct {
	Success        string
	Failure        string
	BackupCodeUsed string
}

type PinErrors struct {
	EngineNotReady error
	PinInvalid     error
	RateLimited    error
	TFANotEnabled  error
}

type PinDeps struct {
	ValidatePin func(string) error

	CheckLimiter    func(ctx context.Context, userID string) error
	RecordFailure   func(ctx context.Context, userID string) error
	ResetLimiter    func(ctx context.Context, userID string) error
	MapLimiterError func(error) error

	HashBackupCode    func(code, salt string) string
	ConsumeBackupCode func(ctx context.Context, userID, codeHash string) (bool, error)
	VerifyTOTP        func(secret, code string) (bool, error)

	MetricInc     func(int)
	EmitAudit     EmitAuditFunc
	EmitRateLimit EmitRateLimitFunc

	Metrics PinMetrics
	Events  PinEvents
	Errors  PinErrors
}

// RunVerifyPin checks a six-digit second factor for user. A matching
// backup code is consumed before the TOTP secret is tried, so a backup
// code that happens to equal the current pin is still burned.
func RunVerifyPin(ctx context.Context, user TFAUser, pin string, deps PinDeps) error {
	normalizePinDeps(&deps)

	if deps.ConsumeBackupCode == nil || deps.VerifyTOTP == nil || deps.HashBackupCode == nil {
		return deps.Errors.EngineNotReady
	}
	if !user.TFAEnabled || user.Secret == "" {
		return deps.Errors.TFANotEnabled
	}
	if err := deps.ValidatePin(pin); err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return deps.Errors.PinInvalid
	}

	if err := deps.CheckLimiter(ctx, user.ID); err != nil {
		mapped := deps.MapLimiterError(err)
		if errors.Is(mapped, deps.Errors.RateLimited) {
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitRateLimit(ctx, "tfa_pin", user.ID, nil)
		}
		return mapped
	}

	if user.BackupCodeSalt != "" {
		consumed, err := deps.ConsumeBackupCode(ctx, user.ID, deps.HashBackupCode(pin, user.BackupCodeSalt))
		if err != nil {
			return err
		}
		if consumed {
			if err := deps.ResetLimiter(ctx, user.ID); err != nil {
				return deps.MapLimiterError(err)
			}
			deps.MetricInc(deps.Metrics.BackupCodeUsed)
			deps.EmitAudit(ctx, deps.Events.BackupCodeUsed, true, user.ID, "", nil, nil)
			return nil
		}
	}

	ok, err := deps.VerifyTOTP(user.Secret, pin)
	if err != nil {
		return err
	}
	if ok {
		if err := deps.ResetLimiter(ctx, user.ID); err != nil {
			return deps.MapLimiterError(err)
		}
		deps.MetricInc(deps.Metrics.Success)
		deps.EmitAudit(ctx, deps.Events.Success, true, user.ID, "", nil, nil)
		return nil
	}

	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Failure, false, user.ID, "", deps.Errors.PinInvalid, nil)
	if err := deps.RecordFailure(ctx, user.ID); err != nil {
		mapped := deps.MapLimiterError(err)
		if errors.Is(mapped, deps.Errors.RateLimited) {
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitRateLimit(ctx, "tfa_pin", user.ID, nil)
		}
		return mapped
	}
	return deps.Errors.PinInvalid
}

func normalizePinDeps(deps *PinDeps) {
	if deps.ValidatePin == nil {
		deps.ValidatePin = func(string) error { return nil }
	}
	if deps.CheckLimiter == nil {
		deps.CheckLimiter = func(context.Context, string) error { return nil }
	}
	if deps.RecordFailure == nil {
		deps.RecordFailure = func(context.Context, string) error { return nil }
	}
	if deps.ResetLimiter == nil {
		deps.ResetLimiter = func(context.Context, string) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = noopRateLimit
	}
}
