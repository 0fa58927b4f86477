package identity

import (
	"context"
)

// BeginTFASetup starts TOTP enrollment for the owner of sess. The returned
// secret stays pending for Config.TFA.SetupTTL; calling again replaces it.
func (e *Engine) BeginTFASetup(ctx context.Context, sess *Session) (*TFASetup, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	user, err := e.sessionUser(ctx, sess)
	if err != nil {
		return nil, err
	}
	setup, err := e.flows.BeginTFASetup(ctx, tfaUser(user), sess.ID)
	if err != nil {
		return nil, err
	}
	return &TFASetup{
		Secret:    setup.Secret,
		URI:       setup.URI,
		ExpiresAt: setup.ExpiresAt,
	}, nil
}

// ConfirmTFASetup enables TFA when req.Secret matches the pending secret
// and req.Pin is valid for it. It returns the plaintext backup codes; they
// cannot be retrieved again. All other sessions of the user are revoked.
func (e *Engine) ConfirmTFASetup(ctx context.Context, sess *Session, req ConfirmTFARequest) ([]string, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	user, err := e.sessionUser(ctx, sess)
	if err != nil {
		return nil, err
	}
	return e.flows.ConfirmTFASetup(ctx, tfaUser(user), sess.ID, req.Secret, normalizePin(req.Pin))
}

// DisableTFA turns TFA off. pin may be a current TOTP pin or an unused
// backup code.
func (e *Engine) DisableTFA(ctx context.Context, sess *Session, pin string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	user, err := e.sessionUser(ctx, sess)
	if err != nil {
		return err
	}
	return e.flows.DisableTFA(ctx, tfaUser(user), sess.ID, normalizePin(pin))
}
