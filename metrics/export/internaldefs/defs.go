package internaldefs

import (
	identity "github.com/pulseapp/identity"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   identity.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   identity.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: identity.MetricRegisterSuccess, Name: "identity_register_success_total", Help: "Accounts created."},
	{ID: identity.MetricRegisterFailure, Name: "identity_register_failure_total", Help: "Registration attempts rejected by validation or storage."},
	{ID: identity.MetricRegisterDuplicate, Name: "identity_register_duplicate_total", Help: "Registration attempts rejected for a taken email or username."},
	{ID: identity.MetricRegisterRateLimited, Name: "identity_register_rate_limited_total", Help: "Rate-limited registration attempts."},
	{ID: identity.MetricLoginSuccess, Name: "identity_login_success_total", Help: "Logins that issued a session."},
	{ID: identity.MetricLoginFailure, Name: "identity_login_failure_total", Help: "Failed login attempts."},
	{ID: identity.MetricLoginRateLimited, Name: "identity_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: identity.MetricCaptchaRejected, Name: "identity_captcha_rejected_total", Help: "Requests rejected by human verification."},
	{ID: identity.MetricTFARequired, Name: "identity_tfa_required_total", Help: "Logins that stopped to ask for a second factor."},
	{ID: identity.MetricTFAPinSuccess, Name: "identity_tfa_pin_success_total", Help: "Accepted second-factor pins."},
	{ID: identity.MetricTFAPinFailure, Name: "identity_tfa_pin_failure_total", Help: "Rejected second-factor pins."},
	{ID: identity.MetricTFAPinRateLimited, Name: "identity_tfa_pin_rate_limited_total", Help: "Rate-limited second-factor pin attempts."},
	{ID: identity.MetricBackupCodeUsed, Name: "identity_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: identity.MetricTFASetupStarted, Name: "identity_tfa_setup_started_total", Help: "Pending two-factor secrets issued."},
	{ID: identity.MetricTFAEnabled, Name: "identity_tfa_enabled_total", Help: "Accounts that enabled two-factor authentication."},
	{ID: identity.MetricTFADisabled, Name: "identity_tfa_disabled_total", Help: "Accounts that disabled two-factor authentication."},
	{ID: identity.MetricSessionCreated, Name: "identity_session_created_total", Help: "Sessions created."},
	{ID: identity.MetricSessionRevoked, Name: "identity_session_revoked_total", Help: "Sessions revoked from the device list."},
	{ID: identity.MetricLogout, Name: "identity_logout_total", Help: "Logout operations."},
	{ID: identity.MetricAuthenticateSuccess, Name: "identity_authenticate_success_total", Help: "Bearer tokens resolved to a session."},
	{ID: identity.MetricAuthenticateFailure, Name: "identity_authenticate_failure_total", Help: "Bearer tokens that did not resolve."},
	{ID: identity.MetricOnboardingCompleted, Name: "identity_onboarding_completed_total", Help: "Completed onboarding flows."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: identity.MetricAuthenticateLatency, Name: "identity_authenticate_latency_seconds", Help: "Bearer token authentication latency."},
}

// AuditDroppedName is the counter name for audit events lost to backpressure.
const AuditDroppedName = "identity_audit_dropped_total"

// HistogramBounds are the upper bucket bounds in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-padding short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
