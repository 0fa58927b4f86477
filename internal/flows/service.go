package flows

import (
	"context"

	"github.com/pulseapp/identity/session"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Login.FindUser != nil && s.deps.Register.CreateUser != nil
}

func (s Service) Register(ctx context.Context, req RegisterRequest) (*IssuedSession, error) {
	return RunRegister(ctx, req, s.deps.Register)
}

func (s Service) Login(ctx context.Context, req LoginRequest) (*IssuedSession, error) {
	return RunLogin(ctx, req, s.deps.Login)
}

func (s Service) VerifyPin(ctx context.Context, user TFAUser, pin string) error {
	return RunVerifyPin(ctx, user, pin, s.deps.Pin)
}

func (s Service) BeginTFASetup(ctx context.Context, user TFAUser, sessionID string) (*TFASetup, error) {
	return RunBeginTFASetup(ctx, user, sessionID, s.deps.TFA)
}

func (s Service) ConfirmTFASetup(ctx context.Context, user TFAUser, sessionID, secret, pin string) ([]string, error) {
	return RunConfirmTFASetup(ctx, user, sessionID, secret, pin, s.deps.TFA)
}

func (s Service) DisableTFA(ctx context.Context, user TFAUser, sessionID, pin string) error {
	return RunDisableTFA(ctx, user, sessionID, pin, s.deps.TFA)
}

func (s Service) Logout(ctx context.Context, sess *session.Session) error {
	return RunLogout(ctx, sess, s.deps.Session)
}

func (s Service) RevokeDevice(ctx context.Context, current *session.Session, deviceID string) error {
	return RunRevokeDevice(ctx, current, deviceID, s.deps.Session)
}
