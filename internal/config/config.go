// Package config loads the identityd service configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/pulseapp/identity"
)

// Store backends for the user directory.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	// StoreMemory keeps users in process memory. Refused in production.
	StoreMemory = "memory"
)

// Service is the process-level configuration of cmd/identityd.
type Service struct {
	AppEnv   string `env:"APP_ENV"   envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	RedisURL    string `env:"REDIS_URL"    envDefault:"redis://localhost:6379/0"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"sess"`

	UserStore   string `env:"USER_STORE"   envDefault:"postgres"`
	MongoURI    string `env:"MONGO_URI"`
	MongoDB     string `env:"MONGO_DB"     envDefault:"pulse"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	SnowflakeNode int64  `env:"SNOWFLAKE_NODE" envDefault:"0"`
	TFAIssuer     string `env:"TFA_ISSUER"     envDefault:"Pulse App"`

	TurnstileSecret string `env:"TURNSTILE_SECRET"`

	FlagsKey     string        `env:"FLAGS_KEY"     envDefault:"flags"`
	FlagsRefresh time.Duration `env:"FLAGS_REFRESH" envDefault:"30s"`

	OnboardingURL string `env:"ONBOARDING_URL"`
	// OnboardingKeyFile holds the PEM Ed25519 key used to sign assertions.
	OnboardingKeyFile string `env:"ONBOARDING_KEY_FILE"`

	TrustProxyHeaders bool          `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	AuditEnabled   bool `env:"AUDIT_ENABLED"   envDefault:"true"`
}

// Load reads an optional .env file (or the files named) and then parses the
// environment. Variables already set in the environment win over .env.
func Load(files ...string) (Service, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Service{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Service
	if err := env.Parse(&cfg); err != nil {
		return Service{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Service{}, err
	}
	return cfg, nil
}

func (s Service) Validate() error {
	switch strings.ToLower(s.UserStore) {
	case StoreMongo:
		if s.MongoURI == "" {
			return errors.New("MONGO_URI is required when USER_STORE=mongo")
		}
	case StorePostgres:
		if s.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when USER_STORE=postgres")
		}
	case StoreMemory:
		if s.Production() {
			return errors.New("USER_STORE=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown USER_STORE %q", s.UserStore)
	}
	if s.Production() && s.TurnstileSecret == "" {
		return errors.New("TURNSTILE_SECRET is required in production")
	}
	if (s.OnboardingURL == "") != (s.OnboardingKeyFile == "") {
		return errors.New("ONBOARDING_URL and ONBOARDING_KEY_FILE must be set together")
	}
	return nil
}

func (s Service) Production() bool {
	return strings.EqualFold(strings.TrimSpace(s.AppEnv), identity.EnvironmentProduction)
}

// Engine derives the engine configuration from the service settings.
func (s Service) Engine() identity.Config {
	cfg := identity.DefaultConfig()
	cfg.Environment = s.AppEnv
	cfg.Snowflake.Node = s.SnowflakeNode
	cfg.Session.RedisPrefix = s.RedisPrefix
	cfg.TFA.Issuer = s.TFAIssuer
	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Audit.Enabled = s.AuditEnabled
	return cfg
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (s Service) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
