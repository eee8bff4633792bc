// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage driver names accepted by OPSDECK_STORAGE. There is no default:
// the operator chooses explicitly so a misconfigured production deploy can
// never silently fall back to the embedded demo database.
const (
	StoragePostgres = "postgres"
	StorageDemo     = "demo"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Storage settings.
	StorageDriver string // "postgres" or "demo"; required.
	DatabaseURL   string // Postgres URL; required when StorageDriver is "postgres".
	DemoPath      string // SQLite path for the demo driver; ":memory:" by default.

	// Operator session settings.
	SessionPrivateKeyPath string // Path to Ed25519 private key PEM file.
	SessionPublicKeyPath  string // Path to Ed25519 public key PEM file.
	SessionTTL            time.Duration

	// Operator bootstrap. When both are set and the operator does not
	// exist yet, it is created at startup.
	SeedOperatorEmail    string
	SeedOperatorPassword string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	RateLimitPerSecond  float64
	RateLimitBurst      int
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                  envInt("OPSDECK_PORT", 8080),
		ReadTimeout:           envDuration("OPSDECK_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:          envDuration("OPSDECK_WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout:       envDuration("OPSDECK_SHUTDOWN_TIMEOUT", 15*time.Second),
		StorageDriver:         envStr("OPSDECK_STORAGE", ""),
		DatabaseURL:           envStr("DATABASE_URL", ""),
		DemoPath:              envStr("OPSDECK_DEMO_PATH", ":memory:"),
		SessionPrivateKeyPath: envStr("OPSDECK_SESSION_PRIVATE_KEY", ""),
		SessionPublicKeyPath:  envStr("OPSDECK_SESSION_PUBLIC_KEY", ""),
		SessionTTL:            envDuration("OPSDECK_SESSION_TTL", 12*time.Hour),
		SeedOperatorEmail:     envStr("OPSDECK_SEED_OPERATOR_EMAIL", ""),
		SeedOperatorPassword:  envStr("OPSDECK_SEED_OPERATOR_PASSWORD", ""),
		OTELEndpoint:          envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:          envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:           envStr("OTEL_SERVICE_NAME", "opsdeck"),
		LogLevel:              envStr("OPSDECK_LOG_LEVEL", "info"),
		RateLimitPerSecond:    envFloat("OPSDECK_RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:        envInt("OPSDECK_RATE_LIMIT_BURST", 40),
		MaxRequestBodyBytes:   int64(envInt("OPSDECK_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required when OPSDECK_STORAGE=postgres")
		}
	case StorageDemo:
		if c.DemoPath == "" {
			return fmt.Errorf("config: OPSDECK_DEMO_PATH must not be empty")
		}
	case "":
		return fmt.Errorf("config: OPSDECK_STORAGE is required (%q or %q)", StoragePostgres, StorageDemo)
	default:
		return fmt.Errorf("config: unknown OPSDECK_STORAGE %q (want %q or %q)", c.StorageDriver, StoragePostgres, StorageDemo)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: OPSDECK_SESSION_TTL must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: OPSDECK_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.RateLimitPerSecond < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("config: rate limit settings must be non-negative")
	}
	if (c.SeedOperatorEmail == "") != (c.SeedOperatorPassword == "") {
		return fmt.Errorf("config: OPSDECK_SEED_OPERATOR_EMAIL and OPSDECK_SEED_OPERATOR_PASSWORD must be set together")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
