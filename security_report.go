package identity

import "github.com/pulseapp/identity/internal/security"

// SecurityReport is the secret-free summary returned by
// [Engine.SecurityReport].
type SecurityReport = security.Report

// SecurityReport summarizes the engine's effective security settings,
// including the codes of every configuration lint finding.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config
	return security.BuildReport(security.ReportInput{
		ProductionMode:        cfg.Production(),
		CaptchaConfigured:     e.captcha != nil,
		PasswordIterations:    cfg.Password.Iterations,
		SessionLifetime:       cfg.Session.Lifetime,
		TFASkew:               cfg.TFA.Skew,
		BackupCodeCount:       cfg.TFA.BackupCodeCount,
		MaxPinAttempts:        cfg.TFA.MaxPinAttempts,
		PinCooldown:           cfg.TFA.PinCooldown,
		MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
		LoginCooldown:         cfg.Security.LoginCooldownDuration,
		EnableIPThrottle:      cfg.Security.EnableIPThrottle,
		MaxRegistrationsPerIP: cfg.Security.MaxRegistrationsPerIP,
		AuditEnabled:          cfg.Audit.Enabled,
		LintCodes:             cfg.Lint().Codes(),
	})
}
