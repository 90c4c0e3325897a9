// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"agora/internal/resilience"
)

// Backend names accepted in BACKEND.
const (
	BackendPostgres = "postgres"
	BackendREST     = "rest"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// Data backend: "postgres" talks to the database directly, "rest"
	// goes through a PostgREST-compatible HTTP API.
	Backend    string
	RESTURL    string
	RESTAPIKey string

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Retry policy for remote calls
	RetryMaxAttempts   int
	RetryInitialDelay  time.Duration
	RetryMaxDelay      time.Duration
	RetryBackoffFactor float64
	QueryTimeout       time.Duration

	KeepAliveInterval time.Duration
	CacheTTL          time.Duration
	SidebarCacheTTL   time.Duration

	// bcrypt hash of the bearer token guarding the admin API. Empty
	// disables the admin API.
	AdminTokenHash string

	// Admin requests allowed per client per minute.
	AdminRateLimit int
	// Connection check and wait requests allowed per client per minute.
	ConnectionRateLimit int
	// Key rate limiting on X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if a value cannot be
// parsed or critical values are missing in production mode.
func Load() (*Config, error) {
	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		Backend:    envOrDefault("BACKEND", BackendPostgres),
		RESTURL:    os.Getenv("REST_URL"),
		RESTAPIKey: os.Getenv("REST_API_KEY"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "agora"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "agora"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
	}

	var errs []error
	cfg.RetryMaxAttempts = envInt("RETRY_MAX_ATTEMPTS", resilience.DefaultMaxAttempts, &errs)
	cfg.RetryInitialDelay = envDuration("RETRY_INITIAL_DELAY", resilience.DefaultInitialDelay, &errs)
	cfg.RetryMaxDelay = envDuration("RETRY_MAX_DELAY", resilience.DefaultMaxDelay, &errs)
	cfg.RetryBackoffFactor = envFloat("RETRY_BACKOFF_FACTOR", resilience.DefaultBackoffFactor, &errs)
	cfg.QueryTimeout = envDuration("QUERY_TIMEOUT", resilience.DefaultTimeout, &errs)
	cfg.KeepAliveInterval = envDuration("KEEPALIVE_INTERVAL", 25*time.Second, &errs)
	cfg.CacheTTL = envDuration("CACHE_TTL", 5*time.Minute, &errs)
	cfg.SidebarCacheTTL = envDuration("SIDEBAR_CACHE_TTL", 5*time.Minute, &errs)
	cfg.AdminRateLimit = envInt("ADMIN_RATE_LIMIT", 60, &errs)
	cfg.ConnectionRateLimit = envInt("CONNECTION_RATE_LIMIT", 30, &errs)
	cfg.TrustProxy = envBool("TRUST_PROXY", false, &errs)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendPostgres:
	case BackendREST:
		if cfg.RESTURL == "" || cfg.RESTAPIKey == "" {
			return nil, fmt.Errorf("REST_URL and REST_API_KEY must be set when BACKEND=rest")
		}
	default:
		return nil, fmt.Errorf("BACKEND must be %q or %q, got %q", BackendPostgres, BackendREST, cfg.Backend)
	}

	if cfg.Env == "production" {
		if cfg.Backend == BackendPostgres && cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.AdminTokenHash == "" {
			return nil, fmt.Errorf("ADMIN_TOKEN_HASH must be set in production")
		}
	}

	return cfg, nil
}

// RetryOptions returns the executor settings.
func (c *Config) RetryOptions() resilience.Options {
	return resilience.Options{
		MaxAttempts:   c.RetryMaxAttempts,
		InitialDelay:  c.RetryInitialDelay,
		MaxDelay:      c.RetryMaxDelay,
		BackoffFactor: c.RetryBackoffFactor,
		Timeout:       c.QueryTimeout,
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive integer, got %q", key, v))
		return fallback
	}
	return n
}

func envBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return fallback
	}
	return b
}

func envFloat(key string, fallback float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 1 {
		*errs = append(*errs, fmt.Errorf("%s must be a number >= 1, got %q", key, v))
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive duration, got %q", key, v))
		return fallback
	}
	return d
}
