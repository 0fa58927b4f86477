package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pulseapp/identity/internal/flows"
	"github.com/pulseapp/identity/internal/limiters"
	"github.com/pulseapp/identity/internal/logging"
	"github.com/pulseapp/identity/internal/rate"
	"github.com/pulseapp/identity/internal/stores"
	"github.com/pulseapp/identity/password"
	"github.com/pulseapp/identity/session"
	"github.com/pulseapp/identity/snowflake"

	internalaudit "github.com/pulseapp/identity/internal/audit"
)

// Engine is the identity service. Build one with [New] and share it; every
// method is safe for concurrent use.
type Engine struct {
	config Config
	flows  flows.Service

	sessionStore *session.Store
	setupStore   *stores.TFASetupStore
	users        UserStore
	flags        FeatureFlags
	captcha      CaptchaVerifier
	onboarder    Onboarder

	hasher *password.Hasher
	ids    *snowflake.Generator
	totp   *totpManager

	loginLimiter *rate.Limiter
	pinLimiter   *limiters.PinLimiter
	regLimiter   *limiters.RegistrationLimiter

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  logging.Logger
	clock   func() time.Time
}

// Close flushes pending audit events. The engine must not be used after.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks AuditDropped down by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.DroppedByType()
}

// logAuditDrop warns on the first dropped event and every thousandth after.
func (e *Engine) logAuditDrop(eventType string, total uint64) {
	if total != 1 && total%1000 != 0 {
		return
	}
	e.logger.Warn(context.Background(), "audit events dropped", "event_type", eventType, "dropped_total", total)
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}

// Ping checks the Redis connection backing sessions and limiters.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessionStore.Ping(ctx)
}

// Register creates an account and signs it in.
//
// Checks run in order: the user-registration feature flag, input shape,
// captcha (production only), the per-IP registration limiter, and
// uniqueness of email and username. Email and username are stored
// lowercased.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	issued, err := e.flows.Register(ctx, flows.RegisterRequest(req))
	if err != nil {
		return nil, err
	}
	return authResult(issued), nil
}

// Login authenticates by email and password. Accounts with TFA enabled
// must also supply a pin or an unused backup code; without one Login
// returns [ErrTFARequired] and the caller should prompt and retry.
//
// Unknown emails and wrong passwords both yield [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	issued, err := e.flows.Login(ctx, flows.LoginRequest(req))
	if err != nil {
		return nil, err
	}
	return authResult(issued), nil
}

// Logout revokes sess.
func (e *Engine) Logout(ctx context.Context, sess *Session) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.Logout(ctx, sess)
}

// GetAuthenticatedUser resolves a bearer access token to its session and
// owner. Unknown, revoked and expired tokens yield [ErrUnauthenticated];
// a disabled owner yields [ErrAccountDisabled].
func (e *Engine) GetAuthenticatedUser(ctx context.Context, accessToken string) (*Session, *User, error) {
	if e == nil || e.sessionStore == nil || e.users == nil {
		return nil, nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}()
	}

	token := strings.TrimSpace(accessToken)
	if token == "" {
		e.metricInc(MetricAuthenticateFailure)
		return nil, nil, ErrUnauthenticated
	}

	sess, err := e.sessionStore.FindByAccessToken(ctx, token)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}
	if sess.Expired(e.now()) {
		e.metricInc(MetricAuthenticateFailure)
		return nil, nil, ErrUnauthenticated
	}

	user, err := e.users.FindByID(ctx, sess.UserID)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}
	if user.Flags.Has(FlagDisabled) {
		e.metricInc(MetricAuthenticateFailure)
		return nil, nil, ErrAccountDisabled
	}

	e.metricInc(MetricAuthenticateSuccess)
	return sess, user, nil
}

// sessionUser loads the owner of an already authenticated session.
func (e *Engine) sessionUser(ctx context.Context, sess *Session) (*User, error) {
	if sess == nil || sess.UserID == "" {
		return nil, ErrUnauthenticated
	}
	user, err := e.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if user.Flags.Has(FlagDisabled) {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

func (e *Engine) issueSession(ctx context.Context, userID string) (*flows.IssuedSession, error) {
	sess, err := e.sessionStore.Issue(ctx, userID, locationFromContext(ctx))
	if err != nil {
		e.logger.Error(ctx, "session issue failed", "user_id", userID, "error", err)
		return nil, err
	}
	e.metricInc(MetricSessionCreated)
	return &flows.IssuedSession{
		ID:           sess.ID,
		UserID:       sess.UserID,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	}, nil
}

func authResult(issued *flows.IssuedSession) *AuthResult {
	return &AuthResult{
		UserID:       issued.UserID,
		SessionID:    issued.ID,
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		ExpiresAt:    issued.ExpiresAt,
	}
}

func (e *Engine) featureEnabled(ctx context.Context, flag string) bool {
	if e.flags == nil {
		return true
	}
	return e.flags.IsEnabled(ctx, flag)
}

// verifyCaptcha is a no-op outside production.
func (e *Engine) verifyCaptcha(ctx context.Context, token string) error {
	if !e.config.Production() || e.captcha == nil {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return ErrCaptchaInvalid
	}
	ok, err := e.captcha.Verify(ctx, token, clientIPFromContext(ctx))
	if err != nil {
		e.logger.Warn(ctx, "captcha verification unavailable", "error", err)
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	if !ok {
		return ErrCaptchaInvalid
	}
	return nil
}

// mapLimiterError translates the limiter packages' errors into the
// engine's sentinels.
func (e *Engine) mapLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited),
		errors.Is(err, limiters.ErrPinRateLimited),
		errors.Is(err, limiters.ErrRegistrationRateLimited):
		return ErrRateLimited
	case errors.Is(err, rate.ErrRedisUnavailable),
		errors.Is(err, limiters.ErrPinUnavailable),
		errors.Is(err, limiters.ErrRegistrationRedisUnavailable):
		e.logger.Error(context.Background(), "limiter backend unavailable", "error", err)
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return err
}

func (e *Engine) lookupLoginUser(ctx context.Context, email string) (*flows.LoginUser, error) {
	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return &flows.LoginUser{
		ID:           user.ID,
		PasswordHash: user.PasswordHash,
		PasswordSalt: user.PasswordSalt,
		Disabled:     user.Flags.Has(FlagDisabled),
		TFA:          tfaUser(user),
	}, nil
}

func tfaUser(user *User) flows.TFAUser {
	u := flows.TFAUser{
		ID:       user.ID,
		Username: user.Username,
	}
	if user.Flags.Has(FlagTFAEnabled) && user.TFA != nil {
		u.TFAEnabled = true
		u.Secret = user.TFA.Secret
		u.BackupCodeSalt = user.TFA.BackupCodeSalt
	}
	return u
}

func (e *Engine) verifyPassword(secret, encodedSalt, hash string) bool {
	salt, err := password.DecodeSalt(encodedSalt)
	if err != nil {
		return false
	}
	return e.hasher.Verify(salt, secret, hash)
}

// burnSalt keeps the unknown-account path as slow as a real verification.
var burnSalt = make([]byte, password.SaltLength)

func (e *Engine) burnPassword(secret string) {
	_ = e.hasher.Hash(burnSalt, secret)
}

func (e *Engine) hashBackupCode(code, encodedSalt string) string {
	salt, err := password.DecodeSalt(encodedSalt)
	if err != nil {
		return ""
	}
	return e.hasher.Hash(salt, strings.TrimSpace(code))
}

func (e *Engine) checkAvailable(ctx context.Context, req flows.RegisterRequest) error {
	if _, err := e.users.FindByEmail(ctx, req.Email); err == nil {
		return ErrEmailAlreadyUsed
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if _, err := e.users.FindByUsername(ctx, req.Username); err == nil {
		return ErrUsernameAlreadyUsed
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	return nil
}
