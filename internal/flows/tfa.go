package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"sync"
	"time"
)

type TFASetup struct {
	Secret    string
	URI       string
	ExpiresAt time.Time
}

// TFAProfileInput is what the user store persists when TFA is switched on.
type TFAProfileInput struct {
	Secret         string
	BackupCodeSalt string
	BackupCodes    []string
}

type TFAMetrics struct {
	SetupStarted int
	Enabled      int
	Disabled     int
	PinFailure   int
}

type TFAEvents struct {
	SetupRequested  string
	Enabled         string
	EnableFailure   string
	Disabled        string
	SessionsRevoked string
}

type TFAErrors struct {
	EngineNotReady error
	AlreadyEnabled error
	NotEnabled     error
	SetupExpired   error
	SetupMismatch  error
	SetupNotFound  error
	PinInvalid     error
}

type TFADeps struct {
	Now func() time.Time

	GenerateSecret func() (string, error)
	ProvisionURI   func(label, secret string) string
	BeginSetup     func(ctx context.Context, userID, secret string) error
	PeekSetup      func(ctx context.Context, userID string) (string, error)
	ClearSetup     func(ctx context.Context, userID string) error
	SetupTTL       time.Duration

	ValidatePin func(string) error
	VerifyTOTP  func(secret, code string) (bool, error)
	VerifyPin   func(context.Context, TFAUser, string) error

	BackupCodeCount int
	NewBackupCode   func() (string, error)
	GenerateSalt    func() (string, error)
	HashBackupCode  func(code, salt string) string

	EnableTFA           func(context.Context, string, TFAProfileInput) error
	DisableTFA          func(context.Context, string) error
	RevokeOtherSessions func(ctx context.Context, userID, except string) (int, error)

	LogWarn func(ctx context.Context, msg string, err error)

	MetricInc func(int)
	EmitAudit EmitAuditFunc

	Metrics TFAMetrics
	Events  TFAEvents
	Errors  TFAErrors
}

// RunBeginTFASetup generates a candidate secret and parks it in the setup
// cache. Calling it again replaces the pending secret.
func RunBeginTFASetup(ctx context.Context, user TFAUser, sessionID string, deps TFADeps) (*TFASetup, error) {
	normalizeTFADeps(&deps)

	if deps.GenerateSecret == nil || deps.BeginSetup == nil || deps.ProvisionURI == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if user.TFAEnabled {
		return nil, deps.Errors.AlreadyEnabled
	}

	secret, err := deps.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := deps.BeginSetup(ctx, user.ID, secret); err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.SetupStarted)
	deps.EmitAudit(ctx, deps.Events.SetupRequested, true, user.ID, sessionID, nil, nil)

	return &TFASetup{
		Secret:    secret,
		URI:       deps.ProvisionURI(user.Username, secret),
		ExpiresAt: deps.Now().Add(deps.SetupTTL),
	}, nil
}

// RunConfirmTFASetup turns TFA on once the caller proves possession of the
// pending secret. It returns the plaintext backup codes, which are never
// retrievable again. Every other session of the user is revoked.
func RunConfirmTFASetup(ctx context.Context, user TFAUser, sessionID, secret, pin string, deps TFADeps) ([]string, error) {
	normalizeTFADeps(&deps)

	if deps.PeekSetup == nil ||
		deps.VerifyTOTP == nil ||
		deps.NewBackupCode == nil ||
		deps.GenerateSalt == nil ||
		deps.HashBackupCode == nil ||
		deps.EnableTFA == nil {
		return nil, deps.Errors.EngineNotReady
	}

	fail := func(err error, reason string) ([]string, error) {
		deps.EmitAudit(ctx, deps.Events.EnableFailure, false, user.ID, sessionID, err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return nil, err
	}

	if user.TFAEnabled {
		return fail(deps.Errors.AlreadyEnabled, "already_enabled")
	}

	pending, err := deps.PeekSetup(ctx, user.ID)
	if err != nil {
		if errors.Is(err, deps.Errors.SetupNotFound) {
			return fail(deps.Errors.SetupExpired, "setup_expired")
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(pending), []byte(secret)) != 1 {
		return fail(deps.Errors.SetupMismatch, "secret_mismatch")
	}

	if err := deps.ValidatePin(pin); err != nil {
		deps.MetricInc(deps.Metrics.PinFailure)
		return fail(deps.Errors.PinInvalid, "pin_invalid")
	}
	ok, err := deps.VerifyTOTP(pending, pin)
	if err != nil {
		return nil, err
	}
	if !ok {
		deps.MetricInc(deps.Metrics.PinFailure)
		return fail(deps.Errors.PinInvalid, "pin_invalid")
	}

	codes, profile, err := newBackupCodes(pending, deps)
	if err != nil {
		return nil, err
	}

	if err := deps.EnableTFA(ctx, user.ID, profile); err != nil {
		if errors.Is(err, deps.Errors.AlreadyEnabled) {
			return fail(err, "already_enabled")
		}
		return nil, err
	}

	if err := deps.ClearSetup(ctx, user.ID); err != nil {
		deps.LogWarn(ctx, "tfa setup cache clear failed", err)
	}

	revoked, err := deps.RevokeOtherSessions(ctx, user.ID, sessionID)
	if err != nil {
		deps.LogWarn(ctx, "revoking other sessions after tfa enable failed", err)
	} else if revoked > 0 {
		deps.EmitAudit(ctx, deps.Events.SessionsRevoked, true, user.ID, sessionID, nil, func() map[string]string {
			return map[string]string{
				"count":  strconv.Itoa(revoked),
				"reason": "tfa_enabled",
			}
		})
	}

	deps.MetricInc(deps.Metrics.Enabled)
	deps.EmitAudit(ctx, deps.Events.Enabled, true, user.ID, sessionID, nil, nil)
	return codes, nil
}

// newBackupCodes draws the codes and hashes them under one fresh salt. The
// hashes are slow, so they run concurrently.
func newBackupCodes(secret string, deps TFADeps) ([]string, TFAProfileInput, error) {
	salt, err := deps.GenerateSalt()
	if err != nil {
		return nil, TFAProfileInput{}, err
	}

	codes := make([]string, 0, deps.BackupCodeCount)
	seen := make(map[string]struct{}, deps.BackupCodeCount)
	for len(codes) < deps.BackupCodeCount {
		code, err := deps.NewBackupCode()
		if err != nil {
			return nil, TFAProfileInput{}, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	hashes := make([]string, len(codes))
	var wg sync.WaitGroup
	for i, code := range codes {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			hashes[i] = deps.HashBackupCode(code, salt)
		}(i, code)
	}
	wg.Wait()

	return codes, TFAProfileInput{
		Secret:         secret,
		BackupCodeSalt: salt,
		BackupCodes:    hashes,
	}, nil
}

// RunDisableTFA switches TFA off after a valid pin or backup code.
func RunDisableTFA(ctx context.Context, user TFAUser, sessionID, pin string, deps TFADeps) error {
	normalizeTFADeps(&deps)

	if deps.VerifyPin == nil || deps.DisableTFA == nil {
		return deps.Errors.EngineNotReady
	}
	if !user.TFAEnabled {
		return deps.Errors.NotEnabled
	}
	if err := deps.VerifyPin(ctx, user, pin); err != nil {
		return err
	}
	if err := deps.DisableTFA(ctx, user.ID); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.Disabled)
	deps.EmitAudit(ctx, deps.Events.Disabled, true, user.ID, sessionID, nil, nil)
	return nil
}

func normalizeTFADeps(deps *TFADeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClearSetup == nil {
		deps.ClearSetup = func(context.Context, string) error { return nil }
	}
	if deps.ValidatePin == nil {
		deps.ValidatePin = func(string) error { return nil }
	}
	if deps.BackupCodeCount <= 0 {
		deps.BackupCodeCount = 8
	}
	if deps.RevokeOtherSessions == nil {
		deps.RevokeOtherSessions = func(context.Context, string, string) (int, error) { return 0, nil }
	}
	if deps.LogWarn == nil {
		deps.LogWarn = func(context.Context, string, error) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
