// Package config loads application configuration from environment
// variables with sensible defaults for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/sentinel/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Session       SessionConfig
	OAuth         OAuthConfig
	RBAC          RBACConfig
	Janitor       JanitorConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// PostgresConfig holds database connection settings
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds redis connection settings for sessions and
// permission versions
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// SessionConfig holds session issuance settings
type SessionConfig struct {
	TTL          time.Duration
	CookieDomain string
	CookieSecure bool
}

// OAuthConfig holds OIDC provider settings for SSO sign-in
type OAuthConfig struct {
	Enabled      bool
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Provider     string
}

// RBACConfig holds permission-resolution settings
type RBACConfig struct {
	// RoleStrategy selects how assignments become permissions:
	// "multi" unions every assigned role, "single" uses the most
	// recently granted role only.
	RoleStrategy string
}

// JanitorConfig holds the expired-assignment sweep settings
type JanitorConfig struct {
	Enabled  bool
	Schedule string

	// AuditRetentionDays bounds how long audit events are kept; zero
	// disables pruning.
	AuditRetentionDays int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SENTINEL_HOST", "0.0.0.0"),
			Port:            getEnv("SENTINEL_PORT", "8080"),
			ReadTimeout:     getEnvDuration("SENTINEL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SENTINEL_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SENTINEL_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SENTINEL_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("SENTINEL_HEALTH_PORT", "9090"),
		},
		Postgres: PostgresConfig{
			URL:             getEnv("SENTINEL_POSTGRES_URL", "postgres://localhost:5432/sentinel?sslmode=disable"),
			MaxOpenConns:    getEnvInt("SENTINEL_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("SENTINEL_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("SENTINEL_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("SENTINEL_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("SENTINEL_REDIS_PASSWORD", ""),
			DB:       getEnvInt("SENTINEL_REDIS_DB", 0),
			PoolSize: getEnvInt("SENTINEL_REDIS_POOL_SIZE", 10),
		},
		Session: SessionConfig{
			TTL:          getEnvDuration("SENTINEL_SESSION_TTL", 24*time.Hour),
			CookieDomain: getEnv("SENTINEL_COOKIE_DOMAIN", ""),
			CookieSecure: getEnvBool("SENTINEL_COOKIE_SECURE", true),
		},
		OAuth: OAuthConfig{
			Enabled:      getEnvBool("SENTINEL_OAUTH_ENABLED", false),
			IssuerURL:    getEnv("SENTINEL_OAUTH_ISSUER", "https://accounts.google.com"),
			ClientID:     getEnv("SENTINEL_OAUTH_CLIENT_ID", ""),
			ClientSecret: getEnv("SENTINEL_OAUTH_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("SENTINEL_OAUTH_REDIRECT_URL", ""),
			Provider:     getEnv("SENTINEL_OAUTH_PROVIDER", "google"),
		},
		RBAC: RBACConfig{
			RoleStrategy: strings.ToLower(getEnv("SENTINEL_RBAC_ROLE_STRATEGY", "multi")),
		},
		Janitor: JanitorConfig{
			Enabled:            getEnvBool("SENTINEL_JANITOR_ENABLED", true),
			Schedule:           getEnv("SENTINEL_JANITOR_SCHEDULE", "@every 10m"),
			AuditRetentionDays: getEnvInt("SENTINEL_AUDIT_RETENTION_DAYS", 90),
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.ParseLogLevel(getEnv("SENTINEL_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("SENTINEL_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("SENTINEL_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("SENTINEL_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("SENTINEL_OTEL_SERVICE_NAME", "sentinel"),
			OTelServiceVersion: getEnv("SENTINEL_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("SENTINEL_OTEL_INSECURE", true),
		},
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
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Postgres.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.OAuth.Enabled {
		if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
			return fmt.Errorf("OAuth client credentials are required when OAuth is enabled")
		}
		if c.OAuth.RedirectURL == "" {
			return fmt.Errorf("OAuth redirect URL is required when OAuth is enabled")
		}
	}

	if c.RBAC.RoleStrategy != "multi" && c.RBAC.RoleStrategy != "single" {
		return fmt.Errorf("RBAC role strategy must be \"multi\" or \"single\", got %q", c.RBAC.RoleStrategy)
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}

	return nil
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
