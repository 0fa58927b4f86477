// Command identityd serves the identity engine over HTTP.
//
// Configuration is read from the environment (see internal/config); a .env
// file in the working directory is loaded first when present.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulseapp/identity"
	"github.com/pulseapp/identity/captcha"
	"github.com/pulseapp/identity/featureflags"
	"github.com/pulseapp/identity/internal/config"
	"github.com/pulseapp/identity/internal/httpapi"
	"github.com/pulseapp/identity/metrics/export/prometheus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger.Info("starting identityd", "env", cfg.AppEnv, "addr", cfg.HTTPAddr, "user_store", cfg.UserStore)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	users, closeUsers, err := openUserStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeUsers()

	flags, err := featureflags.NewRedisSource(rdb, featureflags.RedisConfig{
		Key:             cfg.RedisPrefix + ":" + cfg.FlagsKey,
		RefreshInterval: cfg.FlagsRefresh,
		Default:         true,
	}, logger)
	if err != nil {
		return err
	}
	if err := flags.Start(ctx); err != nil {
		logger.Warn("initial feature flag load failed, using defaults", "error", err)
	}
	defer flags.Close()

	builder := identity.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithUserStore(users).
		WithFeatureFlags(flags).
		WithLogger(logger).
		WithAuditSink(identity.NewSlogSink(logger.With("component", "audit")))

	if cfg.TurnstileSecret != "" {
		verifier, err := captcha.NewTurnstile(cfg.TurnstileSecret)
		if err != nil {
			return err
		}
		builder = builder.WithCaptcha(verifier)
	}

	onboarder, err := newOnboarder(cfg)
	if err != nil {
		return err
	}
	if onboarder != nil {
		builder = builder.WithOnboarder(onboarder)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	logStartupReport(logger, engine)

	var metrics http.Handler
	if cfg.MetricsEnabled {
		metrics = prometheus.New(engine).Handler()
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(engine, httpapi.Options{
			AllowedOrigins:    cfg.AllowedOrigins,
			TrustProxyHeaders: cfg.TrustProxyHeaders,
			Metrics:           metrics,
			Logger:            logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func logStartupReport(logger *slog.Logger, engine *identity.Engine) {
	report := engine.SecurityReport()
	logger.Info("security posture",
		"production", report.ProductionMode,
		"captcha_enforced", report.CaptchaEnforced,
		"password_iterations", report.PasswordIterations,
		"session_lifetime", report.SessionLifetime,
		"tfa_skew_steps", report.TFASkewSteps,
		"audit", report.AuditEnabled,
	)
	for _, code := range report.LintCodes {
		logger.Warn("configuration lint", "code", code)
	}
}
