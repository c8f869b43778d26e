package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/assembly-hq/assembly/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server Server
	Store  Store
	Auth   Auth
	Authz  Authz
	Audit  Audit

	// Observability configuration
	LogLevel observability.LogLevel
}

// Server holds HTTP server configuration
type Server struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Store holds membership store configuration
type Store struct {
	// Type selects the backend: "postgres" or "sqlite".
	Type        string
	PostgresURL string
	SQLitePath  string
	MaxConns    int
}

// Auth holds token verification configuration
type Auth struct {
	// JWTSecret is the HS256 shared secret used to verify bearer tokens.
	JWTSecret string
}

// Authz holds authorization engine configuration
type Authz struct {
	// PolicyPath is the per-operation policy YAML file.
	PolicyPath string
	// FallbackTimeout bounds membership store lookups on the slow path.
	FallbackTimeout time.Duration
	// RateLimit / RateWindow configure the sensitive-operation limiter.
	RateLimit  int
	RateWindow time.Duration
	// RedisURL enables the shared rate limiter; empty keeps counters in-process.
	RedisURL string
}

// Audit holds audit trail configuration
type Audit struct {
	// DBEnabled persists decisions to the database sink.
	DBEnabled bool
	// RetentionDays controls the sweep of old events.
	RetentionDays int
	// SweepSchedule is the cron expression for the retention sweep.
	SweepSchedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: Server{
			Host:            getEnv("ASSEMBLY_HOST", "0.0.0.0"),
			Port:            getEnv("ASSEMBLY_PORT", "8080"),
			ReadTimeout:     getEnvDuration("ASSEMBLY_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("ASSEMBLY_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("ASSEMBLY_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("ASSEMBLY_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Store: Store{
			Type:        getEnv("ASSEMBLY_STORE_TYPE", "sqlite"),
			PostgresURL: getEnv("ASSEMBLY_POSTGRES_URL", ""),
			SQLitePath:  getEnv("ASSEMBLY_SQLITE_PATH", "assembly.db"),
			MaxConns:    getEnvInt("ASSEMBLY_POSTGRES_MAX_CONNS", 10),
		},
		Auth: Auth{
			JWTSecret: getEnv("ASSEMBLY_JWT_SECRET", ""),
		},
		Authz: Authz{
			PolicyPath:      getEnv("ASSEMBLY_POLICY_PATH", "policies.yaml"),
			FallbackTimeout: getEnvDuration("ASSEMBLY_FALLBACK_TIMEOUT", 2*time.Second),
			RateLimit:       getEnvInt("ASSEMBLY_RATE_LIMIT", 5),
			RateWindow:      getEnvDuration("ASSEMBLY_RATE_WINDOW", time.Minute),
			RedisURL:        getEnv("ASSEMBLY_REDIS_URL", ""),
		},
		Audit: Audit{
			DBEnabled:     getEnvBool("ASSEMBLY_AUDIT_DB_ENABLED", false),
			RetentionDays: getEnvInt("ASSEMBLY_AUDIT_RETENTION_DAYS", 90),
			SweepSchedule: getEnv("ASSEMBLY_AUDIT_SWEEP_SCHEDULE", "0 3 * * *"),
		},
		LogLevel: parseLogLevel(getEnv("ASSEMBLY_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Authz.PolicyPath == "" {
		return fmt.Errorf("policy path is required")
	}
	if c.Authz.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.Authz.RateWindow <= 0 {
		return fmt.Errorf("rate window must be positive")
	}
	if c.Authz.FallbackTimeout <= 0 {
		return fmt.Errorf("fallback timeout must be positive")
	}

	switch c.Store.Type {
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be postgres or sqlite)", c.Store.Type)
	}

	if c.Audit.DBEnabled && c.Store.Type != "postgres" {
		return fmt.Errorf("database audit sink requires the postgres store")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
