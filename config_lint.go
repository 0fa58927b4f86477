package identity

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	}
	return fmt.Sprintf("LintSeverity(%d)", int(s))
}

// LintWarning is one advisory finding. Unlike Validate errors, warnings
// never stop Build.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type LintResult []LintWarning

func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	out := make(LintResult, 0, len(r))
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError folds the warnings at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, w.Severity.String()+" "+w.Code+": "+w.Message)
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that are valid but weaken the deployment.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	prod := c.Production()

	if c.TFA.MaxPinAttempts == 0 {
		add("pin_throttle_disabled", LintHigh, "six digit pins can be brute forced without a pin limiter")
	}
	if c.Security.MaxLoginAttempts == 0 {
		sev := LintWarn
		if prod {
			sev = LintHigh
		}
		add("login_throttle_disabled", sev, "failed logins are not throttled")
	} else if !c.Security.EnableIPThrottle {
		add("ip_throttle_disabled", LintInfo, "failed logins are throttled per email only")
	}
	if c.Security.MaxRegistrationsPerIP == 0 {
		add("registration_throttle_disabled", LintInfo, "registrations are not throttled per IP")
	}
	if c.TFA.Skew > 1 {
		add("tfa_skew_wide", LintWarn, fmt.Sprintf("pins stay valid for %d steps either side", c.TFA.Skew))
	}
	if c.Session.Lifetime > 30*24*time.Hour {
		add("session_lifetime_long", LintInfo, "sessions outlive 30 days")
	}
	if !c.Audit.Enabled {
		sev := LintInfo
		if prod {
			sev = LintWarn
		}
		add("audit_disabled", sev, "security events are not recorded")
	}
	if !prod {
		add("captcha_bypassed", LintInfo, "captcha is only enforced in production")
	}

	return ws
}
