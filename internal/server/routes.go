package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/patientcheck/patientcheck/internal/auth"
	"github.com/patientcheck/patientcheck/internal/handler"
	"github.com/patientcheck/patientcheck/internal/metrics"
	"github.com/patientcheck/patientcheck/internal/middleware"
	"github.com/patientcheck/patientcheck/internal/tracing"
)

// Deps holds everything the router needs.
type Deps struct {
	Logger  *slog.Logger
	Version string

	Checker   handler.Checker
	Validator auth.Validator

	// Limiter is nil when rate limiting is off.
	Limiter            middleware.RateLimiter
	RateLimitPerMinute int
	RateLimitBurst     int

	Metrics metrics.Recorder
	// MetricsHandler serves /metrics; the route is absent when nil.
	MetricsHandler http.Handler
	Tracer         tracing.Tracer

	// Database is required for readiness; Cache may be a nil interface.
	Database handler.HealthChecker
	Cache    handler.HealthChecker

	IsDevelopment      bool
	AuthMinDuration    time.Duration
	MaxRequestBodySize int64
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewNoop()
	}
	if d.Tracer == nil {
		d.Tracer = tracing.NewNoop()
	}
	if d.MaxRequestBodySize <= 0 {
		d.MaxRequestBodySize = middleware.DefaultSecurityConfig().MaxRequestBodySize
	}

	h := handler.New(d.Version)
	healthHandler := handler.NewHealthHandler(d.Database, d.Cache, d.Logger)
	checkHandler := handler.NewCheckHandler(d.Checker, d.Logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recoverer(d.Logger, d.IsDevelopment))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      d.IsDevelopment,
		MaxRequestBodySize: d.MaxRequestBodySize,
	}))

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	// Root info endpoint
	r.Get("/", h.Hello)

	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	authCfg := middleware.AuthConfig{
		Logger:      d.Logger,
		Validator:   d.Validator,
		Metrics:     d.Metrics,
		Tracer:      d.Tracer,
		MinDuration: d.AuthMinDuration,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:    d.Logger,
		Limiter:   d.Limiter,
		Metrics:   d.Metrics,
		Enabled:   d.Limiter != nil,
		PerMinute: d.RateLimitPerMinute,
		Burst:     d.RateLimitBurst,
	}

	// Check routes: auth runs before the body is read.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(authCfg))
		r.Use(middleware.RecordCredential)
		r.Use(middleware.RateLimit(rateLimitCfg))
		r.Use(middleware.MaxBodySize(d.MaxRequestBodySize))

		r.Post("/api/v1/checks", checkHandler.Check)
		r.Post("/radar_check/", checkHandler.LegacyCheck)
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
