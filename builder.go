package identity

import (
	"errors"
	"log/slog"
	"time"

	"github.com/pulseapp/identity/internal"
	"github.com/pulseapp/identity/internal/limiters"
	"github.com/pulseapp/identity/internal/logging"
	"github.com/pulseapp/identity/internal/rate"
	"github.com/pulseapp/identity/internal/stores"
	"github.com/pulseapp/identity/password"
	"github.com/pulseapp/identity/session"
	"github.com/pulseapp/identity/snowflake"
	"github.com/redis/go-redis/v9"

	internalaudit "github.com/pulseapp/identity/internal/audit"
)

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	flags     FeatureFlags
	captcha   CaptchaVerifier
	onboarder Onboarder
	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for sessions, the TFA setup cache and
// every limiter. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the user directory. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithFeatureFlags sets the flag source. Without one every flag reads as
// enabled.
func (b *Builder) WithFeatureFlags(flags FeatureFlags) *Builder {
	b.flags = flags
	return b
}

// WithCaptcha sets the captcha verifier. Required when the configured
// environment is production; ignored otherwise.
func (b *Builder) WithCaptcha(verifier CaptchaVerifier) *Builder {
	b.captcha = verifier
	return b
}

// WithOnboarder sets the collaborator CompleteOnboarding calls.
func (b *Builder) WithOnboarder(onboarder Onboarder) *Builder {
	b.onboarder = onboarder
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for infrastructure failures. The default
// discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source used for TOTP verification, session
// issue and expiry times, and audit timestamps.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. It performs no
// I/O.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if cfg.Production() && b.captcha == nil {
		return nil, errors.New("captcha verifier required in production")
	}

	ids, err := snowflake.New(cfg.Snowflake.Node)
	if err != nil {
		return nil, err
	}

	hasher, err := password.New(password.Config{
		Iterations: cfg.Password.Iterations,
	})
	if err != nil {
		return nil, err
	}

	logger := logging.Discard()
	if b.logger != nil {
		logger = logging.NewSlogLogger(b.logger)
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		users:     b.users,
		flags:     b.flags,
		captcha:   b.captcha,
		onboarder: b.onboarder,
		hasher:    hasher,
		ids:       ids,
		totp:      newTOTPManager(cfg.TFA),
		logger:    logger,
		clock:     b.clock,
	}

	engine.sessionStore = session.NewStore(b.redis, ids, session.Config{
		Prefix:   cfg.Session.RedisPrefix,
		Lifetime: cfg.Session.Lifetime,
		Clock:    b.clock,
	})
	ns := cfg.Session.RedisPrefix
	engine.setupStore = stores.NewTFASetupStore(b.redis, internal.PrefixKey(ns, cfg.TFA.SetupPrefix), cfg.TFA.SetupTTL)
	engine.loginLimiter = rate.New(b.redis, rate.Config{
		KeyPrefix:             ns,
		EnableIPThrottle:      cfg.Security.EnableIPThrottle,
		MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
	})
	engine.pinLimiter = limiters.NewPinLimiter(b.redis, limiters.PinConfig{
		KeyPrefix:   ns,
		MaxAttempts: cfg.TFA.MaxPinAttempts,
		Cooldown:    cfg.TFA.PinCooldown,
	})
	engine.regLimiter = limiters.NewRegistrationLimiter(b.redis, limiters.RegistrationConfig{
		KeyPrefix:   ns,
		MaxAttempts: cfg.Security.MaxRegistrationsPerIP,
		Cooldown:    cfg.Security.RegistrationCooldown,
	})
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		DrainTimeout: cfg.Audit.DrainTimeout,
		OnDrop:       engine.logAuditDrop,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.initFlowDeps()

	b.built = true

	return engine, nil
}
