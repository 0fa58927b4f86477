package identity

import (
	"errors"

	"github.com/pulseapp/identity/internal/stores"
	"github.com/pulseapp/identity/session"
)

var (
	// Input validation.
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidEmail            = errors.New("invalid email")
	ErrInvalidUsername         = errors.New("invalid username")
	ErrPasswordMismatch        = errors.New("passwords do not match")
	ErrPasswordPolicy          = errors.New("password policy violation")
	ErrInvalidOrganizationName = errors.New("invalid organization name")
	ErrInvalidOrganizationSlug = errors.New("invalid organization slug")
	ErrInvalidStatusPageName   = errors.New("invalid status page name")

	// State conflicts.
	ErrEmailAlreadyUsed    = errors.New("email already used")
	ErrUsernameAlreadyUsed = errors.New("username already used")
	ErrTFAAlreadyEnabled   = errors.New("tfa already enabled")
	ErrTFANotEnabled       = errors.New("tfa not enabled")
	ErrAlreadyOnboarded    = errors.New("already onboarded")

	// Authentication failures. Messages stay generic on purpose.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTFARequired        = errors.New("tfa pin required")
	ErrTFAPinInvalid      = errors.New("tfa pin invalid")
	ErrTFASetupExpired    = errors.New("tfa setup expired")
	ErrTFASetupMismatch   = errors.New("tfa setup secret mismatch")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrCaptchaInvalid     = errors.New("captcha invalid")

	ErrAccountDisabled = errors.New("account disabled")
	ErrFeatureDisabled = errors.New("feature disabled")
	ErrRateLimited     = errors.New("rate limited")

	// Upstream dependencies.
	ErrCaptchaUnavailable = errors.New("captcha verifier unavailable")
	ErrStoreUnavailable   = errors.New("user store unavailable")
	ErrRedisUnavailable   = errors.New("redis unavailable")
	ErrOnboardingFailed   = errors.New("onboarding collaborator failed")

	// Collaborator contract.
	ErrUserNotFound   = errors.New("user not found")
	ErrDeviceNotFound = errors.New("device not found")

	ErrEngineNotReady = errors.New("engine not initialized")
)

// Category groups errors by how callers should react to them.
type Category uint8

const (
	CategoryNone Category = iota
	CategoryInput
	CategoryConflict
	CategoryAuthentication
	CategoryDisabled
	CategoryRateLimited
	CategoryUpstream
	CategoryInternal
)

func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryInput:
		return "input"
	case CategoryConflict:
		return "conflict"
	case CategoryAuthentication:
		return "authentication"
	case CategoryDisabled:
		return "disabled"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

type errorInfo struct {
	err      error
	code     string
	category Category
}

// Order matters: the first match wins.
var errorTable = []errorInfo{
	{ErrInvalidEmail, "INVALID_EMAIL", CategoryInput},
	{ErrInvalidUsername, "INVALID_USERNAME", CategoryInput},
	{ErrPasswordMismatch, "PASSWORDS_DO_NOT_MATCH", CategoryInput},
	{ErrPasswordPolicy, "WEAK_PASSWORD", CategoryInput},
	{ErrInvalidOrganizationName, "INVALID_ORGANIZATION_NAME", CategoryInput},
	{ErrInvalidOrganizationSlug, "INVALID_ORGANIZATION_SLUG", CategoryInput},
	{ErrInvalidStatusPageName, "INVALID_STATUS_PAGE_NAME", CategoryInput},
	{ErrInvalidInput, "INVALID_INPUT", CategoryInput},

	{ErrEmailAlreadyUsed, "EMAIL_ALREADY_USED", CategoryConflict},
	{ErrUsernameAlreadyUsed, "USERNAME_ALREADY_USED", CategoryConflict},
	{ErrTFAAlreadyEnabled, "TFA_ALREADY_ENABLED", CategoryConflict},
	{ErrTFANotEnabled, "TFA_NOT_ENABLED", CategoryConflict},
	{ErrAlreadyOnboarded, "ALREADY_ONBOARDED", CategoryConflict},

	{ErrInvalidCredentials, "INVALID_CREDENTIALS", CategoryAuthentication},
	{ErrTFARequired, "TFA_REQUIRED", CategoryAuthentication},
	{ErrTFAPinInvalid, "TFA_PIN_INVALID", CategoryAuthentication},
	{ErrTFASetupExpired, "TFA_SETUP_TIMED_OUT", CategoryAuthentication},
	{ErrTFASetupMismatch, "TFA_SECRET_MISMATCH", CategoryAuthentication},
	{ErrUnauthenticated, "UNAUTHENTICATED", CategoryAuthentication},
	{ErrCaptchaInvalid, "CAPTCHA_INVALID", CategoryAuthentication},

	{ErrAccountDisabled, "ACCOUNT_DISABLED", CategoryDisabled},
	{ErrFeatureDisabled, "FEATURE_DISABLED", CategoryDisabled},
	{ErrRateLimited, "RATE_LIMITED", CategoryRateLimited},

	{ErrCaptchaUnavailable, "CAPTCHA_UNAVAILABLE", CategoryUpstream},
	{ErrStoreUnavailable, "STORE_UNAVAILABLE", CategoryUpstream},
	{ErrRedisUnavailable, "STORE_UNAVAILABLE", CategoryUpstream},
	{session.ErrRedisUnavailable, "STORE_UNAVAILABLE", CategoryUpstream},
	{stores.ErrTFASetupBackend, "STORE_UNAVAILABLE", CategoryUpstream},
	{ErrOnboardingFailed, "ONBOARDING_FAILED", CategoryUpstream},

	{ErrUserNotFound, "USER_NOT_FOUND", CategoryInternal},
	{ErrDeviceNotFound, "DEVICE_NOT_FOUND", CategoryInput},
	{ErrEngineNotReady, "INTERNAL", CategoryInternal},
}

func lookupError(err error) (errorInfo, bool) {
	for _, info := range errorTable {
		if errors.Is(err, info.err) {
			return info, true
		}
	}
	return errorInfo{}, false
}

// CategoryOf classifies err. Unknown errors are [CategoryInternal]; nil is
// [CategoryNone].
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}
	if info, ok := lookupError(err); ok {
		return info.category
	}
	return CategoryInternal
}

// ErrorCode returns the stable machine-readable code for err, or "" for nil.
// These codes are part of the HTTP contract and the audit log.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if info, ok := lookupError(err); ok {
		return info.code
	}
	return "INTERNAL"
}
