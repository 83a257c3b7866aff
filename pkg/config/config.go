package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tracklane/tracklane/pkg/attachments"
	"github.com/tracklane/tracklane/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Storage       attachments.S3Config
	Redis         RedisConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	CORSOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration. Redis is optional; when Addr is
// empty the server runs with in-memory rate limiting only.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis backend is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AuditConfig holds audit trail configuration. The database recorder is
// always on; LogFile adds a JSON-lines file sink.
type AuditConfig struct {
	LogFile string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("TRACKLANE_HOST", "0.0.0.0"),
			Port:            getEnv("TRACKLANE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("TRACKLANE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("TRACKLANE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("TRACKLANE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("TRACKLANE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("TRACKLANE_HEALTH_PORT", "9090"),
			CORSOrigins:     strings.Split(getEnv("TRACKLANE_CORS_ORIGINS", "*"), ","),
		},
		Database: DatabaseConfig{
			URL:             getEnv("TRACKLANE_POSTGRES_URL", ""),
			MaxOpenConns:    getEnvInt("TRACKLANE_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("TRACKLANE_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("TRACKLANE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Storage: attachments.S3Config{
			Endpoint:     getEnv("TRACKLANE_S3_ENDPOINT", ""),
			Region:       getEnv("TRACKLANE_S3_REGION", "us-east-1"),
			Bucket:       getEnv("TRACKLANE_S3_BUCKET", ""),
			AccessKey:    getEnv("TRACKLANE_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("TRACKLANE_S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("TRACKLANE_S3_USE_PATH_STYLE", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("TRACKLANE_REDIS_ADDR", ""),
			Password: getEnv("TRACKLANE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("TRACKLANE_REDIS_DB", 0),
		},
		Audit: AuditConfig{
			LogFile: getEnv("TRACKLANE_AUDIT_LOG_FILE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("TRACKLANE_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("TRACKLANE_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
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

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("S3 bucket is required")
	}

	return nil
}

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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
