// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// ErrNoAPIKeys indicates neither API_KEYS nor API_KEY_HASHES holds a usable entry.
var ErrNoAPIKeys = errors.New("at least one of API_KEYS or API_KEY_HASHES must be set")

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Record store (PostgreSQL)
	DatabaseURL      string `env:"DATABASE_URL,required"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	DatabaseMinConns int32  `env:"DATABASE_MIN_CONNS" envDefault:"2"`

	// Cache (Redis). Optional: rate limiting and hashed key caching are off without it.
	RedisURL string `env:"REDIS_URL"`

	// Credentials. Plain keys are comma-separated; argon2id hashes are
	// semicolon-separated because PHC strings contain commas.
	APIKeys      []string `env:"API_KEYS" envSeparator:","`
	APIKeyHashes []string `env:"API_KEY_HASHES" envSeparator:";"`

	// Check policy
	ProgramName         string `env:"PROGRAM_NAME,required,notEmpty"`
	NumberType          string `env:"NUMBER_TYPE" envDefault:"NI"`
	DemoPatientsEnabled bool   `env:"DEMO_PATIENTS_ENABLED" envDefault:"true"`

	// Key for the number fingerprints in logs and traces. A random key is
	// used when unset, so fingerprints do not correlate across restarts.
	NumberHashKey string `env:"NUMBER_HASH_KEY"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Every authentication attempt takes at least this long.
	AuthMinDuration time.Duration `env:"AUTH_MIN_DURATION" envDefault:"50ms"`

	// Rate limiting (per credential, requires Redis)
	RateLimitEnabled   bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerMinute int  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"600"`
	RateLimitBurst     int  `env:"RATE_LIMIT_BURST" envDefault:"50"`

	// Prometheus metrics on /metrics
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// Request body size limit in bytes (default 16KB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"16384"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// RateLimitActive reports whether requests are rate limited.
func (c *Config) RateLimitActive() bool {
	return c.RateLimitEnabled && c.RedisURL != "" && c.RateLimitPerMinute > 0
}

// Validate checks constraints env tags cannot express.
func (c *Config) Validate() error {
	c.APIKeys = compact(c.APIKeys)
	c.APIKeyHashes = compact(c.APIKeyHashes)
	c.ProgramName = strings.TrimSpace(c.ProgramName)
	c.NumberType = strings.TrimSpace(c.NumberType)

	if len(c.APIKeys) == 0 && len(c.APIKeyHashes) == 0 {
		return ErrNoAPIKeys
	}
	if c.ProgramName == "" {
		return errors.New("PROGRAM_NAME must not be blank")
	}
	if c.NumberType == "" {
		return errors.New("NUMBER_TYPE must not be blank")
	}
	if c.DatabaseMaxConns < 1 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be positive, got %d", c.DatabaseMaxConns)
	}
	if c.DatabaseMinConns < 0 || c.DatabaseMinConns > c.DatabaseMaxConns {
		return fmt.Errorf("DATABASE_MIN_CONNS must be between 0 and %d, got %d", c.DatabaseMaxConns, c.DatabaseMinConns)
	}
	if c.RateLimitEnabled && c.RateLimitPerMinute > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive, got %d", c.RateLimitBurst)
	}
	if c.AuthMinDuration < 0 {
		return fmt.Errorf("AUTH_MIN_DURATION must not be negative, got %s", c.AuthMinDuration)
	}
	return nil
}

// compact trims entries and drops blanks.
func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
