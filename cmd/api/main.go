// Package main is the entrypoint for the patientcheck API server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/patientcheck/patientcheck/internal/auth"
	"github.com/patientcheck/patientcheck/internal/cache"
	"github.com/patientcheck/patientcheck/internal/config"
	"github.com/patientcheck/patientcheck/internal/metrics"
	"github.com/patientcheck/patientcheck/internal/repository"
	"github.com/patientcheck/patientcheck/internal/server"
	"github.com/patientcheck/patientcheck/internal/service"
	"github.com/patientcheck/patientcheck/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.PoolOptions{
		MaxConns: cfg.DatabaseMaxConns,
		MinConns: cfg.DatabaseMinConns,
	})
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return err
	}
	logger.Info("connected to database", "max_conns", cfg.DatabaseMaxConns)

	// Initialize cache (optional)
	var cacheClient *cache.Cache
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			repo.Close()
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			return err
		}
		logger.Info("connected to Redis")
	} else {
		logger.Warn("REDIS_URL not set; rate limiting and key verification caching are disabled")
	}

	validator, err := buildValidator(cfg, cacheClient, logger)
	if err != nil {
		logger.Error("failed to load API keys", "error", err)
		return err
	}

	// Metrics and tracing
	var (
		recorder       metrics.Recorder = metrics.NewNoop()
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		recorder = prom
		metricsHandler = prom.Handler()
	}
	tracer := tracing.NewOTel()

	// Initialize services
	checkService, err := service.NewCheckService(
		service.NewRepositoryStore(repo),
		service.CheckConfig{
			ProgramName: cfg.ProgramName,
			NumberType:  cfg.NumberType,
			DemoEnabled: cfg.DemoPatientsEnabled,
		},
		service.WithMetrics(recorder),
		service.WithTracer(tracer),
		service.WithNumberHasher(tracing.NewNumberHasher([]byte(cfg.NumberHashKey))),
		service.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create check service", "error", err)
		return err
	}

	deps := server.Deps{
		Logger:             logger,
		Version:            version,
		Checker:            checkService,
		Validator:          validator,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
		Metrics:            recorder,
		MetricsHandler:     metricsHandler,
		Tracer:             tracer,
		Database:           repo,
		IsDevelopment:      cfg.IsDevelopment(),
		AuthMinDuration:    cfg.AuthMinDuration,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}
	// Interfaces stay nil rather than holding a nil *cache.Cache.
	if cacheClient != nil {
		deps.Cache = cacheClient
		if cfg.RateLimitActive() {
			deps.Limiter = cacheClient
		}
	}

	srv := server.New(
		server.NewRouter(deps),
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	if cacheClient != nil {
		srv.OnShutdown("redis", func(context.Context) error {
			return cacheClient.Close()
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"version", version,
		"program", cfg.ProgramName,
		"number_type", cfg.NumberType,
		"demo_patients", cfg.DemoPatientsEnabled,
		"rate_limit", deps.Limiter != nil,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	return nil
}

// buildValidator chains the plain and hashed key lists that are configured.
func buildValidator(cfg *config.Config, cacheClient *cache.Cache, logger *slog.Logger) (auth.Validator, error) {
	var (
		chain         auth.Chain
		plain, hashed int
	)

	if len(cfg.APIKeys) > 0 {
		set, err := auth.NewTokenSet(cfg.APIKeys)
		if err != nil {
			return nil, err
		}
		plain = set.Len()
		chain = append(chain, set)
	}

	if len(cfg.APIKeyHashes) > 0 {
		var opts []auth.HashedOption
		if cacheClient != nil {
			opts = append(opts, auth.WithVerificationCache(cacheClient, auth.DefaultVerificationTTL))
		}
		set, err := auth.NewHashedTokenSet(cfg.APIKeyHashes, opts...)
		if err != nil {
			return nil, err
		}
		hashed = set.Len()
		chain = append(chain, set)
	}

	if len(chain) == 0 {
		return nil, config.ErrNoAPIKeys
	}
	logger.Info("api keys loaded",
		"plain", plain,
		"hashed", hashed,
		"verification_cache", cacheClient != nil && hashed > 0,
	)
	return chain, nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "patientcheck")
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
