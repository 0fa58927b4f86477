package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/pulseapp/identity/password"
	"github.com/pulseapp/identity/snowflake"
)

// EnvironmentProduction enables the captcha gate.
const EnvironmentProduction = "production"

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override fields; Build calls Validate.
type Config struct {
	Environment string
	Snowflake   SnowflakeConfig
	Session     SessionConfig
	Password    PasswordConfig
	TFA         TFAConfig
	Security    SecurityConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

type SnowflakeConfig struct {
	Node int64
}

// SessionConfig controls the session key namespace and absolute lifetime.
type SessionConfig struct {
	RedisPrefix string
	Lifetime    time.Duration
}

// PasswordConfig sets the PBKDF2 cost and the accepted password lengths.
type PasswordConfig struct {
	Iterations int
	MinLength  int
	MaxLength  int
}

// TFAConfig controls TOTP enrollment and verification.
//
// Skew is the number of 30 second steps accepted on either side of the
// current one.
type TFAConfig struct {
	Issuer          string
	Skew            int
	SetupTTL        time.Duration
	SetupPrefix     string
	BackupCodeCount int
	MaxPinAttempts  int
	PinCooldown     time.Duration
}

// SecurityConfig holds the throttling thresholds. A zero attempt count
// disables the corresponding limiter.
type SecurityConfig struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	MaxRegistrationsPerIP int
	RegistrationCooldown  time.Duration
}

type AuditConfig struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	DrainTimeout time.Duration
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Environment: "development",
		Snowflake: SnowflakeConfig{
			Node: 0,
		},
		Session: SessionConfig{
			RedisPrefix: "sess",
			Lifetime:    30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Iterations: password.DefaultIterations,
			MinLength:  8,
			MaxLength:  76,
		},
		TFA: TFAConfig{
			Issuer:          "Pulse App",
			Skew:            1,
			SetupTTL:        5 * time.Minute,
			SetupPrefix:     "tfa:setup",
			BackupCodeCount: 8,
			MaxPinAttempts:  5,
			PinCooldown:     5 * time.Minute,
		},
		Security: SecurityConfig{
			EnableIPThrottle:      true,
			MaxLoginAttempts:      10,
			LoginCooldownDuration: 15 * time.Minute,
			MaxRegistrationsPerIP: 5,
			RegistrationCooldown:  time.Hour,
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			DrainTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Production reports whether the engine runs with production safeguards.
func (c *Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentProduction)
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	// Snowflake
	if c.Snowflake.Node < 0 || c.Snowflake.Node > snowflake.MaxNode {
		return errors.New("Snowflake Node must be within [0, 1023]")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}

	// Password
	if c.Password.Iterations < password.MinIterations {
		return errors.New("Password Iterations must be >= 500000")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// TFA
	if strings.TrimSpace(c.TFA.Issuer) == "" {
		return errors.New("TFA Issuer must not be empty")
	}
	if c.TFA.Skew < 0 || c.TFA.Skew > 2 {
		return errors.New("TFA Skew must be within [0, 2]")
	}
	if c.TFA.SetupTTL <= 0 {
		return errors.New("TFA SetupTTL must be > 0")
	}
	if c.TFA.BackupCodeCount < 1 {
		return errors.New("TFA BackupCodeCount must be >= 1")
	}
	if c.TFA.MaxPinAttempts < 0 {
		return errors.New("TFA MaxPinAttempts must be >= 0")
	}
	if c.TFA.MaxPinAttempts > 0 && c.TFA.PinCooldown <= 0 {
		return errors.New("TFA PinCooldown must be > 0 when MaxPinAttempts is set")
	}

	// Security
	if c.Security.MaxLoginAttempts < 0 {
		return errors.New("Security MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0")
	}
	if c.Security.MaxRegistrationsPerIP < 0 {
		return errors.New("Security MaxRegistrationsPerIP must be >= 0")
	}
	if c.Security.MaxRegistrationsPerIP > 0 && c.Security.RegistrationCooldown <= 0 {
		return errors.New("Security RegistrationCooldown must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	if c.Audit.DrainTimeout < 0 {
		return errors.New("Audit DrainTimeout must be >= 0")
	}

	return nil
}
