package identity

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{"defaults", func(*Config) {}, true},
		{"node max", func(c *Config) { c.Snowflake.Node = 1023 }, true},
		{"node too large", func(c *Config) { c.Snowflake.Node = 1024 }, false},
		{"node negative", func(c *Config) { c.Snowflake.Node = -1 }, false},
		{"blank session prefix", func(c *Config) { c.Session.RedisPrefix = "  " }, false},
		{"zero lifetime", func(c *Config) { c.Session.Lifetime = 0 }, false},
		{"iterations too low", func(c *Config) { c.Password.Iterations = 100000 }, false},
		{"iterations higher", func(c *Config) { c.Password.Iterations = 600000 }, true},
		{"min length zero", func(c *Config) { c.Password.MinLength = 0 }, false},
		{"max below min", func(c *Config) { c.Password.MaxLength = 4 }, false},
		{"blank issuer", func(c *Config) { c.TFA.Issuer = "" }, false},
		{"skew zero", func(c *Config) { c.TFA.Skew = 0 }, true},
		{"skew too wide", func(c *Config) { c.TFA.Skew = 3 }, false},
		{"setup ttl zero", func(c *Config) { c.TFA.SetupTTL = 0 }, false},
		{"no backup codes", func(c *Config) { c.TFA.BackupCodeCount = 0 }, false},
		{"pin limiter off", func(c *Config) { c.TFA.MaxPinAttempts = 0 }, true},
		{"pin cooldown missing", func(c *Config) { c.TFA.PinCooldown = 0 }, false},
		{"login limiter off", func(c *Config) {
			c.Security.MaxLoginAttempts = 0
			c.Security.LoginCooldownDuration = 0
		}, true},
		{"login cooldown missing", func(c *Config) { c.Security.LoginCooldownDuration = 0 }, false},
		{"registration cooldown missing", func(c *Config) { c.Security.RegistrationCooldown = 0 }, false},
		{"audit buffer zero", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Session.Lifetime != 30*24*time.Hour {
		t.Fatalf("expected 30 day sessions, got %v", cfg.Session.Lifetime)
	}
	if cfg.TFA.SetupTTL != 5*time.Minute || cfg.TFA.BackupCodeCount != 8 || cfg.TFA.Issuer != "Pulse App" {
		t.Fatalf("unexpected tfa defaults %+v", cfg.TFA)
	}
	if cfg.Password.MinLength != 8 || cfg.Password.MaxLength != 76 {
		t.Fatalf("unexpected password bounds %+v", cfg.Password)
	}
	if cfg.Production() {
		t.Fatal("default config must not be production")
	}
}

func TestConfigProduction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Environment = " Production "
	if !cfg.Production() {
		t.Fatal("expected production")
	}
}
