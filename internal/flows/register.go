package flows

import (
	"context"
	"errors"
)

type RegisterRequest struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
	CaptchaToken    string
}

// RegisterUserInput is the record handed to the user store.
type RegisterUserInput struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	PasswordSalt string
}

type RegisterMetrics struct {
	Success         int
	Failure         int
	Duplicate       int
	RateLimited     int
	CaptchaRejected int
}

type RegisterEvents struct {
	Success         string
	Failure         string
	Duplicate       string
	CaptchaRejected string
}

type RegisterErrors struct {
	EngineNotReady      error
	FeatureDisabled     error
	RateLimited         error
	EmailAlreadyUsed    error
	UsernameAlreadyUsed error
}

type RegisterDeps struct {
	FeatureEnabled func(context.Context) bool
	Validate       func(RegisterRequest) error
	Normalize      func(RegisterRequest) RegisterRequest
	VerifyCaptcha  func(context.Context, string) error
	CheckAvailable func(context.Context, RegisterRequest) error

	EnforceLimiter  func(context.Context) error
	MapLimiterError func(error) error

	GenerateSalt func() ([]byte, error)
	EncodeSalt   func([]byte) string
	HashPassword func([]byte, string) string
	NewUserID    func() string
	CreateUser   func(context.Context, RegisterUserInput) error
	IssueSession func(context.Context, string) (*IssuedSession, error)
	// RevokeSession removes the session issued for a user whose insert
	// failed afterwards.
	RevokeSession func(context.Context, *IssuedSession) error

	MetricInc     func(int)
	EmitAudit     EmitAuditFunc
	EmitRateLimit EmitRateLimitFunc

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RunRegister validates and deduplicates a new account, issues its first
// session under the pre-generated user ID, then persists the account. A
// failed insert revokes that session so a rejected registration leaves no
// record behind. The store's Create is the authority on uniqueness;
// CheckAvailable only avoids hashing for obvious duplicates.
func RunRegister(ctx context.Context, req RegisterRequest, deps RegisterDeps) (*IssuedSession, error) {
	normalizeRegisterDeps(&deps)

	if deps.FeatureEnabled == nil ||
		deps.Validate == nil ||
		deps.GenerateSalt == nil ||
		deps.HashPassword == nil ||
		deps.NewUserID == nil ||
		deps.CreateUser == nil ||
		deps.IssueSession == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if !deps.FeatureEnabled(ctx) {
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", "", deps.Errors.FeatureDisabled, func() map[string]string {
			return map[string]string{
				"reason": "feature_disabled",
			}
		})
		return nil, deps.Errors.FeatureDisabled
	}

	if err := deps.Validate(req); err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "invalid_input",
			}
		})
		return nil, err
	}
	req = deps.Normalize(req)

	if err := deps.VerifyCaptcha(ctx, req.CaptchaToken); err != nil {
		deps.MetricInc(deps.Metrics.CaptchaRejected)
		deps.EmitAudit(ctx, deps.Events.CaptchaRejected, false, "", "", err, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"scope":      "register",
			}
		})
		return nil, err
	}

	if err := deps.EnforceLimiter(ctx); err != nil {
		mapped := deps.MapLimiterError(err)
		if errors.Is(mapped, deps.Errors.RateLimited) {
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitRateLimit(ctx, "register", "", func() map[string]string {
				return map[string]string{
					"identifier": req.Email,
				}
			})
		}
		return nil, mapped
	}

	if err := deps.CheckAvailable(ctx, req); err != nil {
		return nil, registerCreateError(ctx, req, deps, err)
	}

	salt, err := deps.GenerateSalt()
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, err
	}
	input := RegisterUserInput{
		ID:           deps.NewUserID(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: deps.HashPassword(salt, req.Password),
		PasswordSalt: deps.EncodeSalt(salt),
	}
	req.Password = ""
	req.ConfirmPassword = ""

	issued, err := deps.IssueSession(ctx, input.ID)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"reason":     "session_issue_failed",
			}
		})
		return nil, err
	}

	if err := deps.CreateUser(ctx, input); err != nil {
		if revokeErr := deps.RevokeSession(ctx, issued); revokeErr != nil {
			deps.EmitAudit(ctx, deps.Events.Failure, false, input.ID, issued.ID, revokeErr, func() map[string]string {
				return map[string]string{
					"identifier": req.Email,
					"reason":     "orphan_session_revoke_failed",
				}
			})
		}
		return nil, registerCreateError(ctx, req, deps, err)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, input.ID, issued.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": req.Email,
			"username":   req.Username,
		}
	})
	return issued, nil
}

func registerCreateError(ctx context.Context, req RegisterRequest, deps RegisterDeps, err error) error {
	if errors.Is(err, deps.Errors.EmailAlreadyUsed) || errors.Is(err, deps.Errors.UsernameAlreadyUsed) {
		deps.MetricInc(deps.Metrics.Duplicate)
		deps.EmitAudit(ctx, deps.Events.Duplicate, false, "", "", err, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
			}
		})
		return err
	}
	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Failure, false, "", "", err, func() map[string]string {
		return map[string]string{
			"identifier": req.Email,
			"reason":     "store_create_failed",
		}
	})
	return err
}

func normalizeRegisterDeps(deps *RegisterDeps) {
	if deps.Normalize == nil {
		deps.Normalize = func(r RegisterRequest) RegisterRequest { return r }
	}
	if deps.VerifyCaptcha == nil {
		deps.VerifyCaptcha = func(context.Context, string) error { return nil }
	}
	if deps.CheckAvailable == nil {
		deps.CheckAvailable = func(context.Context, RegisterRequest) error { return nil }
	}
	if deps.EnforceLimiter == nil {
		deps.EnforceLimiter = func(context.Context) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.EncodeSalt == nil {
		deps.EncodeSalt = func(b []byte) string { return string(b) }
	}
	if deps.RevokeSession == nil {
		deps.RevokeSession = func(context.Context, *IssuedSession) error { return nil }
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
