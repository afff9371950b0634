// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Console configures the storeconsole daemon.
type Console struct {
	Port            string
	DatabasePath    string
	BackendURL      string
	RequestTimeout  time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
	Log             Log
}

// Sandbox configures the sandbox backend.
type Sandbox struct {
	Port         string
	DatabasePath string
	Secret       string
	TokenTTL     time.Duration
	BuildDelay   time.Duration
	SeedDemo     bool
	Log          Log
}

// Log selects the slog handler.
type Log struct {
	Level  string
	Format string
}

// ConsoleFromEnv reads the daemon configuration.
func ConsoleFromEnv() (Console, error) {
	var errs []error
	cfg := Console{
		Port:            envOrDefault("PORT", "8080"),
		DatabasePath:    envOrDefault("DATABASE_PATH", "storeconsole.db"),
		BackendURL:      strings.TrimRight(envOrDefault("BACKEND_URL", "http://localhost:8000/api/v1"), "/"),
		RequestTimeout:  envDuration("REQUEST_TIMEOUT", 10*time.Second, &errs),
		PollInterval:    envDuration("POLL_INTERVAL", 3*time.Second, &errs),
		PollMaxAttempts: envInt("POLL_MAX_ATTEMPTS", 30, &errs),
		Log:             logFromEnv(),
	}
	if cfg.PollMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("POLL_MAX_ATTEMPTS must be at least 1, got %d", cfg.PollMaxAttempts))
	}
	return cfg, errors.Join(errs...)
}

// SandboxFromEnv reads the sandbox backend configuration.
func SandboxFromEnv() (Sandbox, error) {
	var errs []error
	cfg := Sandbox{
		Port:         envOrDefault("SANDBOX_PORT", "8000"),
		DatabasePath: envOrDefault("SANDBOX_DATABASE_PATH", "sandbox.db"),
		Secret:       envOrDefault("SANDBOX_SECRET", "sandbox-dev-secret"),
		TokenTTL:     envDuration("SANDBOX_TOKEN_TTL", 24*time.Hour, &errs),
		BuildDelay:   envDuration("SANDBOX_BUILD_DELAY", 5*time.Second, &errs),
		SeedDemo:     envOrDefault("SANDBOX_SEED_DEMO", "true") == "true",
		Log:          logFromEnv(),
	}
	return cfg, errors.Join(errs...)
}

func logFromEnv() Log {
	return Log{
		Level:  envOrDefault("LOG_LEVEL", "info"),
		Format: envOrDefault("LOG_FORMAT", "text"),
	}
}

// NewLogger builds a logger writing to w.
func (l Log) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(l.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("LOG_FORMAT: unsupported format %q (use text or json)", l.Format)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func envInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}
