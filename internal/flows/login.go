package flows

import (
	"context"
	"errors"
	"time"
)

type LoginRequest struct {
	Email        string
	Password     string
	Pin          string
	CaptchaToken string
}

// LoginUser is the subset of a stored account needed to authenticate it.
type LoginUser struct {
	ID           string
	PasswordHash string
	PasswordSalt string
	Disabled     bool
	TFA          TFAUser
}

type LoginMetrics struct {
	Success         int
	Failure         int
	RateLimited     int
	CaptchaRejected int
	TFARequired     int
}

type LoginEvents struct {
	Success         string
	Failure         string
	RateLimited     string
	CaptchaRejected string
	TFARequired     string
}

type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	AccountDisabled    error
	TFARequired        error
	RateLimited        error
	UserNotFound       error
}

type LoginDeps struct {
	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	Validate      func(LoginRequest) error
	Normalize     func(LoginRequest) LoginRequest
	VerifyCaptcha func(context.Context, string) error

	CheckLoginRate     func(ctx context.Context, email, ip string) error
	IncrementLoginRate func(ctx context.Context, email, ip string) error
	ResetLoginRate     func(ctx context.Context, email string) error
	MapLimiterError    func(error) error

	FindUser        func(context.Context, string) (*LoginUser, error)
	VerifyPassword  func(password, salt, hash string) bool
	BurnPassword    func(password string)
	VerifyPin       func(context.Context, TFAUser, string) error
	UpdateLastLogin func(context.Context, string, time.Time) error
	IssueSession    func(context.Context, string) (*IssuedSession, error)

	MetricInc     func(int)
	EmitAudit     EmitAuditFunc
	EmitRateLimit EmitRateLimitFunc

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin authenticates an email/password pair, with a second factor when
// the account has one, and issues a session.
//
// Unknown accounts and wrong passwords are indistinguishable to the caller
// and both count toward the login limiter.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) (*IssuedSession, error) {
	normalizeLoginDeps(&deps)

	if deps.FindUser == nil || deps.VerifyPassword == nil || deps.IssueSession == nil {
		return nil, deps.Errors.EngineNotReady
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
				"scope":      "login",
			}
		})
		return nil, err
	}

	ip := deps.ClientIPFromContext(ctx)
	if err := deps.CheckLoginRate(ctx, req.Email, ip); err != nil {
		return nil, loginLimiterError(ctx, req, deps, err)
	}

	user, err := deps.FindUser(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, deps.Errors.UserNotFound) {
			deps.MetricInc(deps.Metrics.Failure)
			return nil, err
		}
		deps.BurnPassword(req.Password)
		return nil, loginCredentialFailure(ctx, req, ip, "", deps)
	}

	if !deps.VerifyPassword(req.Password, user.PasswordSalt, user.PasswordHash) {
		return nil, loginCredentialFailure(ctx, req, ip, user.ID, deps)
	}

	if user.Disabled {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, user.ID, "", deps.Errors.AccountDisabled, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"reason":     "account_disabled",
			}
		})
		return nil, deps.Errors.AccountDisabled
	}

	if user.TFA.TFAEnabled {
		if req.Pin == "" {
			deps.MetricInc(deps.Metrics.TFARequired)
			deps.EmitAudit(ctx, deps.Events.TFARequired, false, user.ID, "", deps.Errors.TFARequired, nil)
			return nil, deps.Errors.TFARequired
		}
		if deps.VerifyPin == nil {
			return nil, deps.Errors.EngineNotReady
		}
		if err := deps.VerifyPin(ctx, user.TFA, req.Pin); err != nil {
			deps.MetricInc(deps.Metrics.Failure)
			return nil, err
		}
	}

	if err := deps.ResetLoginRate(ctx, req.Email); err != nil {
		return nil, deps.MapLimiterError(err)
	}

	if err := deps.UpdateLastLogin(ctx, user.ID, deps.Now()); err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, err
	}

	issued, err := deps.IssueSession(ctx, user.ID)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"reason":     "session_issue_failed",
			}
		})
		return nil, err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, user.ID, issued.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": req.Email,
			"tfa":        boolString(user.TFA.TFAEnabled),
		}
	})
	return issued, nil
}

func loginCredentialFailure(ctx context.Context, req LoginRequest, ip, userID string, deps LoginDeps) error {
	if err := deps.IncrementLoginRate(ctx, req.Email, ip); err != nil {
		mapped := deps.MapLimiterError(err)
		if !errors.Is(mapped, deps.Errors.RateLimited) {
			return mapped
		}
	}
	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Failure, false, userID, "", deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier": req.Email,
			"reason":     "invalid_credentials",
		}
	})
	return deps.Errors.InvalidCredentials
}

func loginLimiterError(ctx context.Context, req LoginRequest, deps LoginDeps, err error) error {
	mapped := deps.MapLimiterError(err)
	if errors.Is(mapped, deps.Errors.RateLimited) {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", "", mapped, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
			}
		})
		deps.EmitRateLimit(ctx, "login", "", func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
			}
		})
	}
	return mapped
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Validate == nil {
		deps.Validate = func(LoginRequest) error { return nil }
	}
	if deps.Normalize == nil {
		deps.Normalize = func(r LoginRequest) LoginRequest { return r }
	}
	if deps.VerifyCaptcha == nil {
		deps.VerifyCaptcha = func(context.Context, string) error { return nil }
	}
	if deps.CheckLoginRate == nil {
		deps.CheckLoginRate = func(context.Context, string, string) error { return nil }
	}
	if deps.IncrementLoginRate == nil {
		deps.IncrementLoginRate = func(context.Context, string, string) error { return nil }
	}
	if deps.ResetLoginRate == nil {
		deps.ResetLoginRate = func(context.Context, string) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.BurnPassword == nil {
		deps.BurnPassword = func(string) {}
	}
	if deps.UpdateLastLogin == nil {
		deps.UpdateLastLogin = func(context.Context, string, time.Time) error { return nil }
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
