package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pulseapp/identity"
	"github.com/pulseapp/identity/internal/logging"
	"github.com/pulseapp/identity/middleware"
)

// Service is the engine surface the handlers call. *identity.Engine
// implements it.
type Service interface {
	middleware.Authenticator

	Register(ctx context.Context, req identity.RegisterRequest) (*identity.AuthResult, error)
	Login(ctx context.Context, req identity.LoginRequest) (*identity.AuthResult, error)
	Logout(ctx context.Context, sess *identity.Session) error
	UserExists(ctx context.Context, email string) (bool, error)
	Profile(ctx context.Context, sess *identity.Session) (*identity.UserProfile, error)
	CompleteOnboarding(ctx context.Context, sess *identity.Session, req identity.OnboardingRequest) error
	BeginTFASetup(ctx context.Context, sess *identity.Session) (*identity.TFASetup, error)
	ConfirmTFASetup(ctx context.Context, sess *identity.Session, req identity.ConfirmTFARequest) ([]string, error)
	DisableTFA(ctx context.Context, sess *identity.Session, pin string) error
	Devices(ctx context.Context, sess *identity.Session) ([]identity.Device, error)
	RevokeDevice(ctx context.Context, sess *identity.Session, deviceID string) error
	Health(ctx context.Context) identity.HealthStatus
}

type Options struct {
	AllowedOrigins    []string
	TrustProxyHeaders bool
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
	// RequestTimeout bounds each handler; zero means 15s.
	RequestTimeout time.Duration
}

type handlers struct {
	svc    Service
	logger logging.Logger
}

// NewRouter builds the identityd HTTP handler.
func NewRouter(svc Service, opts Options) http.Handler {
	logger := logging.Discard()
	if opts.Logger != nil {
		logger = logging.NewSlogLogger(opts.Logger)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	h := &handlers{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestMetadata(middleware.MetadataOptions{TrustProxyHeaders: opts.TrustProxyHeaders}))
	r.Use(accessLog(logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(timeout))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
		})

		r.Route("/user", func(r chi.Router) {
			r.Post("/exists", h.exists)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSession(svc))

				r.Get("/@me", h.me)
				r.Post("/complete-onboarding", h.completeOnboarding)
				r.Post("/setup-tfa", h.setupTFA)
				r.Post("/enable-tfa", h.enableTFA)
				r.Post("/disable-tfa", h.disableTFA)
				r.Post("/logout", h.logout)
				r.Get("/devices", h.devices)
				r.Delete("/devices/{id}", h.revokeDevice)
			})
		})
	})

	return r
}

func accessLog(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Debug(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.RequestIDFromContext(r.Context()),
			)
		})
	}
}
