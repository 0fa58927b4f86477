package identity

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@(.+)$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9_.]*$`)
	slugPattern     = regexp.MustCompile(`^[a-z0-9-]{3,48}$`)
	alphaPattern    = regexp.MustCompile(`[a-zA-Z]`)
	digitPattern    = regexp.MustCompile(`\d`)
	specialPattern  = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func normalizePin(pin string) string {
	return strings.TrimSpace(pin)
}

func validEmail(email string) bool {
	return !isBlank(email) && emailPattern.MatchString(email)
}

func validUsername(username string) bool {
	return username != "" && usernamePattern.MatchString(username)
}

// checkPasswordPolicy enforces length bounds and the three required
// character classes. Length is counted in runes.
func checkPasswordPolicy(password string, minLength, maxLength int) error {
	n := utf8.RuneCountInString(password)
	if n < minLength || n > maxLength {
		return ErrPasswordPolicy
	}
	if !alphaPattern.MatchString(password) ||
		!digitPattern.MatchString(password) ||
		!specialPattern.MatchString(password) {
		return ErrPasswordPolicy
	}
	return nil
}

func validateRegisterInput(req RegisterRequest, cfg PasswordConfig) error {
	if isBlank(req.Email) || isBlank(req.Username) || isBlank(req.Password) || isBlank(req.ConfirmPassword) {
		return ErrInvalidInput
	}
	if !validEmail(normalizeEmail(req.Email)) {
		return ErrInvalidEmail
	}
	if !validUsername(normalizeUsername(req.Username)) {
		return ErrInvalidUsername
	}
	if req.Password != req.ConfirmPassword {
		return ErrPasswordMismatch
	}
	return checkPasswordPolicy(req.Password, cfg.MinLength, cfg.MaxLength)
}

func validateLoginInput(req LoginRequest) error {
	if isBlank(req.Email) || isBlank(req.Password) {
		return ErrInvalidInput
	}
	if !validEmail(normalizeEmail(req.Email)) {
		return ErrInvalidEmail
	}
	return nil
}

func validatePinInput(pin string) error {
	if len(strings.TrimSpace(pin)) != totpDigits {
		return ErrInvalidInput
	}
	return nil
}

func validateOnboardingInput(req OnboardingRequest) error {
	if isBlank(req.OrganizationName) {
		return ErrInvalidOrganizationName
	}
	if !slugPattern.MatchString(req.OrganizationSlug) {
		return ErrInvalidOrganizationSlug
	}
	if isBlank(req.StatusPageName) {
		return ErrInvalidStatusPageName
	}
	return nil
}
