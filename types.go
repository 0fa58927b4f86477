package identity

import (
	"context"
	"time"

	"github.com/pulseapp/identity/session"
)

// Session is the authenticated device record handed to every
// session-scoped operation.
type Session = session.Session

// Location is the request origin stored on a session.
type Location = session.Location

// User is the persisted identity record. PasswordHash and PasswordSalt are
// always written together.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	PasswordSalt string
	Flags        UserFlags
	TFA          *TFAProfile
	LastLogin    time.Time
}

// TFAProfile exists if and only if [FlagTFAEnabled] is set.
type TFAProfile struct {
	Secret         string
	BackupCodeSalt string
	// BackupCodes holds the hashes of the unused codes.
	BackupCodes []string
}

// UserStore is the user directory the engine delegates persistence to.
//
// Create must check email and username uniqueness atomically with the
// insert, reporting [ErrEmailAlreadyUsed] or [ErrUsernameAlreadyUsed].
// EnableTFA must fail with [ErrTFAAlreadyEnabled] when the flag is already
// set. ConsumeBackupCode removes hash from the profile and reports whether
// it was present, as one atomic step. Lookups of unknown users return
// [ErrUserNotFound].
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, userID string) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	SetFlags(ctx context.Context, userID string, flags UserFlags) error
	ClearFlags(ctx context.Context, userID string, flags UserFlags) error
	EnableTFA(ctx context.Context, userID string, profile TFAProfile) error
	DisableTFA(ctx context.Context, userID string) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)
}

// Feature flag identifiers read by the engine.
const (
	FeatureUserRegistration   = "user-registration"
	FeatureOrgCreation        = "org-creation"
	FeatureStatusPageCreation = "status-page-creation"
)

// FeatureFlags reports the current state of a named flag.
type FeatureFlags interface {
	IsEnabled(ctx context.Context, flag string) bool
}

// CaptchaVerifier checks a client-supplied captcha token. An error means
// the verifier itself could not be reached.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Onboarder creates the business objects a new account starts with.
type Onboarder interface {
	CreateOrganization(ctx context.Context, ownerID, name, slug string) (string, error)
	CreateStatusPage(ctx context.Context, organizationID, name string) error
}

type RegisterRequest struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
	CaptchaToken    string
}

type LoginRequest struct {
	Email        string
	Password     string
	Pin          string
	CaptchaToken string
}

// AuthResult is returned by Register and Login. It is the only place the
// plaintext tokens of a session are exposed.
type AuthResult struct {
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TFASetup is the pending enrollment returned by BeginTFASetup.
type TFASetup struct {
	Secret    string
	URI       string
	ExpiresAt time.Time
}

type ConfirmTFARequest struct {
	Secret string
	Pin    string
}

type OnboardingRequest struct {
	OrganizationName string
	OrganizationSlug string
	StatusPageName   string
}

// UserProfile is the public view of a user.
type UserProfile struct {
	ID         string
	Email      string
	Username   string
	Flags      []string
	TFAEnabled bool
	Onboarded  bool
	CreatedAt  time.Time
	LastLogin  time.Time
}

// Device describes one of the caller's sessions.
type Device struct {
	ID         string
	DeviceType string
	Browser    string
	OS         string
	IP         string
	Location   string
	FirstLogin time.Time
	ExpiresAt  time.Time
	Current    bool
}
