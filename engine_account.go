package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserExists reports whether an account is registered under email.
func (e *Engine) UserExists(ctx context.Context, email string) (bool, error) {
	if e == nil || e.users == nil {
		return false, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if !validEmail(email) {
		return false, ErrInvalidEmail
	}
	if _, err := e.users.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Profile returns the public view of the owner of sess.
func (e *Engine) Profile(ctx context.Context, sess *Session) (*UserProfile, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	user, err := e.sessionUser(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &UserProfile{
		ID:         user.ID,
		Email:      user.Email,
		Username:   user.Username,
		Flags:      user.Flags.Names(),
		TFAEnabled: user.Flags.Has(FlagTFAEnabled),
		Onboarded:  user.Flags.Has(FlagCompletedOnboarding),
		CreatedAt:  e.ids.ExtractCreationTimeString(user.ID),
		LastLogin:  user.LastLogin,
	}, nil
}

// Devices lists the live sessions of the owner of sess, oldest first.
func (e *Engine) Devices(ctx context.Context, sess *Session) ([]Device, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	sessions, err := e.sessionStore.ListForUser(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(sessions))
	for _, s := range sessions {
		d := describeDevice(s)
		d.FirstLogin = e.ids.ExtractCreationTimeString(s.ID)
		d.Current = s.ID == sess.ID
		devices = append(devices, d)
	}
	return devices, nil
}

// RevokeDevice signs out one of the caller's own sessions. IDs that do not
// belong to the caller yield [ErrDeviceNotFound].
func (e *Engine) RevokeDevice(ctx context.Context, sess *Session, deviceID string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return ErrDeviceNotFound
	}
	return e.flows.RevokeDevice(ctx, sess, deviceID)
}

// CompleteOnboarding creates the caller's first organization and status
// page, then marks the account onboarded. The flag stays unset when either
// collaborator call fails.
func (e *Engine) CompleteOnboarding(ctx context.Context, sess *Session, req OnboardingRequest) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if e.onboarder == nil {
		return ErrEngineNotReady
	}
	user, err := e.sessionUser(ctx, sess)
	if err != nil {
		return err
	}

	if !e.featureEnabled(ctx, FeatureOrgCreation) || !e.featureEnabled(ctx, FeatureStatusPageCreation) {
		return ErrFeatureDisabled
	}
	if user.Flags.Has(FlagCompletedOnboarding) {
		return ErrAlreadyOnboarded
	}

	req.OrganizationName = strings.TrimSpace(req.OrganizationName)
	req.OrganizationSlug = strings.ToLower(strings.TrimSpace(req.OrganizationSlug))
	req.StatusPageName = strings.TrimSpace(req.StatusPageName)
	if err := validateOnboardingInput(req); err != nil {
		return err
	}

	fail := func(step string, err error) error {
		e.logger.Warn(ctx, "onboarding step failed", "step", step, "user_id", user.ID, "error", err)
		if _, known := lookupError(err); !known {
			err = fmt.Errorf("%w: %v", ErrOnboardingFailed, err)
		}
		e.emitAudit(ctx, auditEventOnboardingFailure, false, user.ID, sess.ID, err, func() map[string]string {
			return map[string]string{
				"step": step,
			}
		})
		return err
	}

	orgID, err := e.onboarder.CreateOrganization(ctx, user.ID, req.OrganizationName, req.OrganizationSlug)
	if err != nil {
		return fail("organization", err)
	}
	if err := e.onboarder.CreateStatusPage(ctx, orgID, req.StatusPageName); err != nil {
		return fail("status_page", err)
	}
	if err := e.users.SetFlags(ctx, user.ID, FlagCompletedOnboarding); err != nil {
		return fail("flags", err)
	}

	e.metricInc(MetricOnboardingCompleted)
	e.emitAudit(ctx, auditEventOnboardingCompleted, true, user.ID, sess.ID, nil, func() map[string]string {
		return map[string]string{
			"organization_id": orgID,
			"slug":            req.OrganizationSlug,
		}
	})
	return nil
}
