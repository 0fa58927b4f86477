package security

import "time"

// Report summarizes the security posture of an engine configuration. It
// carries no secrets and is safe to log or expose on an admin endpoint.
type Report struct {
	ProductionMode      bool
	CaptchaEnforced     bool
	PasswordIterations  int
	SessionLifetime     time.Duration
	TFASkewSteps        int
	BackupCodeCount     int
	PinThrottleActive   bool
	LoginThrottleActive bool
	IPThrottleActive    bool
	RegistrationLimited bool
	AuditEnabled        bool
	// LintCodes are the codes of every configuration lint finding.
	LintCodes []string
}

type ReportInput struct {
	ProductionMode        bool
	CaptchaConfigured     bool
	PasswordIterations    int
	SessionLifetime       time.Duration
	TFASkew               int
	BackupCodeCount       int
	MaxPinAttempts        int
	PinCooldown           time.Duration
	MaxLoginAttempts      int
	LoginCooldown         time.Duration
	EnableIPThrottle      bool
	MaxRegistrationsPerIP int
	AuditEnabled          bool
	LintCodes             []string
}

func BuildReport(input ReportInput) Report {
	loginThrottle := input.MaxLoginAttempts > 0 && input.LoginCooldown > 0

	return Report{
		ProductionMode:      input.ProductionMode,
		CaptchaEnforced:     input.ProductionMode && input.CaptchaConfigured,
		PasswordIterations:  input.PasswordIterations,
		SessionLifetime:     input.SessionLifetime,
		TFASkewSteps:        input.TFASkew,
		BackupCodeCount:     input.BackupCodeCount,
		PinThrottleActive:   input.MaxPinAttempts > 0 && input.PinCooldown > 0,
		LoginThrottleActive: loginThrottle,
		IPThrottleActive:    loginThrottle && input.EnableIPThrottle,
		RegistrationLimited: input.MaxRegistrationsPerIP > 0,
		AuditEnabled:        input.AuditEnabled,
		LintCodes:           append([]string(nil), input.LintCodes...),
	}
}
