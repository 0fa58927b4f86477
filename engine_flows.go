package identity

import (
	"context"
	"time"

	"github.com/pulseapp/identity/internal"
	"github.com/pulseapp/identity/internal/flows"
	"github.com/pulseapp/identity/internal/stores"
	"github.com/pulseapp/identity/password"
	"github.com/pulseapp/identity/session"
)

func (e *Engine) initFlowDeps() {
	e.flows = flows.New(flows.Deps{
		Register: e.registerFlowDeps(),
		Login:    e.loginFlowDeps(),
		Pin:      e.pinFlowDeps(),
		TFA:      e.tfaFlowDeps(),
		Session:  e.sessionFlowDeps(),
	})
}

func (e *Engine) metricIncInt(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) registerFlowDeps() flows.RegisterDeps {
	return flows.RegisterDeps{
		FeatureEnabled: func(ctx context.Context) bool {
			return e.featureEnabled(ctx, FeatureUserRegistration)
		},
		Validate: func(req flows.RegisterRequest) error {
			return validateRegisterInput(RegisterRequest(req), e.config.Password)
		},
		Normalize: func(req flows.RegisterRequest) flows.RegisterRequest {
			req.Email = normalizeEmail(req.Email)
			req.Username = normalizeUsername(req.Username)
			return req
		},
		VerifyCaptcha: e.verifyCaptcha,
		CheckAvailable: func(ctx context.Context, req flows.RegisterRequest) error {
			return e.checkAvailable(ctx, req)
		},
		EnforceLimiter: func(ctx context.Context) error {
			return e.regLimiter.Enforce(ctx, clientIPFromContext(ctx))
		},
		MapLimiterError: e.mapLimiterError,
		GenerateSalt:    e.hasher.GenerateSalt,
		EncodeSalt:      password.EncodeSalt,
		HashPassword:    e.hasher.Hash,
		NewUserID: func() string {
			return e.ids.Generate().String()
		},
		CreateUser: func(ctx context.Context, in flows.RegisterUserInput) error {
			return e.users.Create(ctx, &User{
				ID:           in.ID,
				Email:        in.Email,
				Username:     in.Username,
				PasswordHash: in.PasswordHash,
				PasswordSalt: in.PasswordSalt,
			})
		},
		IssueSession: e.issueSession,
		RevokeSession: func(ctx context.Context, issued *flows.IssuedSession) error {
			err := e.sessionStore.Revoke(ctx, &session.Session{
				ID:          issued.ID,
				UserID:      issued.UserID,
				AccessHash:  session.HashToken(issued.AccessToken),
				RefreshHash: session.HashToken(issued.RefreshToken),
			})
			if err == nil {
				e.metricInc(MetricSessionRevoked)
			}
			return err
		},
		MetricInc:     e.metricIncInt,
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: flows.RegisterMetrics{
			Success:         int(MetricRegisterSuccess),
			Failure:         int(MetricRegisterFailure),
			Duplicate:       int(MetricRegisterDuplicate),
			RateLimited:     int(MetricRegisterRateLimited),
			CaptchaRejected: int(MetricCaptchaRejected),
		},
		Events: flows.RegisterEvents{
			Success:         auditEventRegisterSuccess,
			Failure:         auditEventRegisterFailure,
			Duplicate:       auditEventRegisterDuplicate,
			CaptchaRejected: auditEventCaptchaRejected,
		},
		Errors: flows.RegisterErrors{
			EngineNotReady:      ErrEngineNotReady,
			FeatureDisabled:     ErrFeatureDisabled,
			RateLimited:         ErrRateLimited,
			EmailAlreadyUsed:    ErrEmailAlreadyUsed,
			UsernameAlreadyUsed: ErrUsernameAlreadyUsed,
		},
	}
}

func (e *Engine) loginFlowDeps() flows.LoginDeps {
	return flows.LoginDeps{
		ClientIPFromContext: clientIPFromContext,
		Now:                 e.now,
		Validate: func(req flows.LoginRequest) error {
			return validateLoginInput(LoginRequest(req))
		},
		Normalize: func(req flows.LoginRequest) flows.LoginRequest {
			req.Email = normalizeEmail(req.Email)
			req.Pin = normalizePin(req.Pin)
			return req
		},
		VerifyCaptcha:      e.verifyCaptcha,
		CheckLoginRate:     e.loginLimiter.CheckLogin,
		IncrementLoginRate: e.loginLimiter.IncrementLogin,
		ResetLoginRate:     e.loginLimiter.ResetLogin,
		MapLimiterError:    e.mapLimiterError,
		FindUser:           e.lookupLoginUser,
		VerifyPassword:     e.verifyPassword,
		BurnPassword:       e.burnPassword,
		VerifyPin: func(ctx context.Context, user flows.TFAUser, pin string) error {
			return e.flows.VerifyPin(ctx, user, pin)
		},
		UpdateLastLogin: func(ctx context.Context, userID string, at time.Time) error {
			return e.users.UpdateLastLogin(ctx, userID, at)
		},
		IssueSession:  e.issueSession,
		MetricInc:     e.metricIncInt,
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: flows.LoginMetrics{
			Success:         int(MetricLoginSuccess),
			Failure:         int(MetricLoginFailure),
			RateLimited:     int(MetricLoginRateLimited),
			CaptchaRejected: int(MetricCaptchaRejected),
			TFARequired:     int(MetricTFARequired),
		},
		Events: flows.LoginEvents{
			Success:         auditEventLoginSuccess,
			Failure:         auditEventLoginFailure,
			RateLimited:     auditEventLoginRateLimited,
			CaptchaRejected: auditEventCaptchaRejected,
			TFARequired:     auditEventTFARequired,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			AccountDisabled:    ErrAccountDisabled,
			TFARequired:        ErrTFARequired,
			RateLimited:        ErrRateLimited,
			UserNotFound:       ErrUserNotFound,
		},
	}
}

func (e *Engine) pinFlowDeps() flows.PinDeps {
	return flows.PinDeps{
		ValidatePin:       validatePinInput,
		CheckLimiter:      e.pinLimiter.Check,
		RecordFailure:     e.pinLimiter.RecordFailure,
		ResetLimiter:      e.pinLimiter.Reset,
		MapLimiterError:   e.mapLimiterError,
		HashBackupCode:    e.hashBackupCode,
		ConsumeBackupCode: e.users.ConsumeBackupCode,
		VerifyTOTP:        e.verifyTOTP,
		MetricInc:         e.metricIncInt,
		EmitAudit:         e.emitAudit,
		EmitRateLimit:     e.emitRateLimit,
		Metrics: flows.PinMetrics{
			Success:        int(MetricTFAPinSuccess),
			Failure:        int(MetricTFAPinFailure),
			RateLimited:    int(MetricTFAPinRateLimited),
			BackupCodeUsed: int(MetricBackupCodeUsed),
		},
		Events: flows.PinEvents{
			Success:        auditEventTFAPinSuccess,
			Failure:        auditEventTFAPinFailure,
			BackupCodeUsed: auditEventBackupCodeUsed,
		},
		Errors: flows.PinErrors{
			EngineNotReady: ErrEngineNotReady,
			PinInvalid:     ErrTFAPinInvalid,
			RateLimited:    ErrRateLimited,
			TFANotEnabled:  ErrTFANotEnabled,
		},
	}
}

func (e *Engine) tfaFlowDeps() flows.TFADeps {
	return flows.TFADeps{
		Now:            e.now,
		GenerateSecret: e.totp.GenerateSecret,
		ProvisionURI:   e.totp.ProvisionURI,
		BeginSetup:     e.setupStore.Begin,
		PeekSetup:      e.setupStore.Peek,
		ClearSetup:     e.setupStore.Clear,
		SetupTTL:       e.setupStore.TTL(),
		ValidatePin:    validatePinInput,
		VerifyTOTP:     e.verifyTOTP,
		VerifyPin: func(ctx context.Context, user flows.TFAUser, pin string) error {
			return e.flows.VerifyPin(ctx, user, pin)
		},
		BackupCodeCount: e.config.TFA.BackupCodeCount,
		NewBackupCode:   internal.NewBackupCode,
		GenerateSalt: func() (string, error) {
			salt, err := e.hasher.GenerateSalt()
			if err != nil {
				return "", err
			}
			return password.EncodeSalt(salt), nil
		},
		HashBackupCode: e.hashBackupCode,
		EnableTFA: func(ctx context.Context, userID string, p flows.TFAProfileInput) error {
			return e.users.EnableTFA(ctx, userID, TFAProfile{
				Secret:         p.Secret,
				BackupCodeSalt: p.BackupCodeSalt,
				BackupCodes:    p.BackupCodes,
			})
		},
		DisableTFA: e.users.DisableTFA,
		RevokeOtherSessions: func(ctx context.Context, userID, except string) (int, error) {
			n, err := e.sessionStore.RevokeAllForUser(ctx, userID, except)
			if err == nil {
				e.metricAdd(MetricSessionRevoked, uint64(n))
			}
			return n, err
		},
		LogWarn: func(ctx context.Context, msg string, err error) {
			e.logger.Warn(ctx, msg, "error", err)
		},
		MetricInc: e.metricIncInt,
		EmitAudit: e.emitAudit,
		Metrics: flows.TFAMetrics{
			SetupStarted: int(MetricTFASetupStarted),
			Enabled:      int(MetricTFAEnabled),
			Disabled:     int(MetricTFADisabled),
			PinFailure:   int(MetricTFAPinFailure),
		},
		Events: flows.TFAEvents{
			SetupRequested:  auditEventTFASetupRequested,
			Enabled:         auditEventTFAEnabled,
			EnableFailure:   auditEventTFAEnableFailure,
			Disabled:        auditEventTFADisabled,
			SessionsRevoked: auditEventSessionsRevoked,
		},
		Errors: flows.TFAErrors{
			EngineNotReady: ErrEngineNotReady,
			AlreadyEnabled: ErrTFAAlreadyEnabled,
			NotEnabled:     ErrTFANotEnabled,
			SetupExpired:   ErrTFASetupExpired,
			SetupMismatch:  ErrTFASetupMismatch,
			SetupNotFound:  stores.ErrTFASetupNotFound,
			PinInvalid:     ErrTFAPinInvalid,
		},
	}
}

func (e *Engine) sessionFlowDeps() flows.SessionDeps {
	return flows.SessionDeps{
		RevokeSession: func(ctx context.Context, sess *session.Session) error {
			return e.sessionStore.Revoke(ctx, sess)
		},
		ListForUser: e.sessionStore.ListForUser,
		MetricInc:   e.metricIncInt,
		EmitAudit:   e.emitAudit,
		Metrics: flows.SessionMetrics{
			Revoked: int(MetricSessionRevoked),
			Logout:  int(MetricLogout),
		},
		Events: flows.SessionEvents{
			Logout:        auditEventLogout,
			DeviceRevoked: auditEventDeviceRevoked,
		},
		Errors: flows.SessionErrors{
			EngineNotReady:  ErrEngineNotReady,
			Unauthenticated: ErrUnauthenticated,
			DeviceNotFound:  ErrDeviceNotFound,
		},
	}
}

func (e *Engine) verifyTOTP(secret, code string) (bool, error) {
	ok, _, err := e.totp.VerifyCode(secret, code, e.now())
	return ok, err
}
