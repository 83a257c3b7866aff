package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklane/tracklane/pkg/observability"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TRACKLANE_POSTGRES_URL", "postgres://localhost/tracklane?sslmode=disable")
	t.Setenv("TRACKLANE_S3_BUCKET", "tracklane-attachments")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRACKLANE_PORT", "3000")
	t.Setenv("TRACKLANE_READ_TIMEOUT", "5s")
	t.Setenv("TRACKLANE_REDIS_ADDR", "localhost:6379")
	t.Setenv("TRACKLANE_S3_USE_PATH_STYLE", "true")
	t.Setenv("TRACKLANE_LOG_LEVEL", "debug")
	t.Setenv("TRACKLANE_AUDIT_LOG_FILE", "/tmp/audit.log")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Storage.UsePathStyle)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, "/tmp/audit.log", cfg.Audit.LogFile)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Run("missing postgres URL", func(t *testing.T) {
		t.Setenv("TRACKLANE_POSTGRES_URL", "")
		t.Setenv("TRACKLANE_S3_BUCKET", "tracklane-attachments")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "postgres URL")
	})

	t.Run("missing bucket", func(t *testing.T) {
		t.Setenv("TRACKLANE_POSTGRES_URL", "postgres://localhost/tracklane")
		t.Setenv("TRACKLANE_S3_BUCKET", "")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "S3 bucket")
	})

	t.Run("port collision", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TRACKLANE_PORT", "8080")
		t.Setenv("TRACKLANE_HEALTH_PORT", "8080")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be different")
	})

	t.Run("bad duration falls back to default", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TRACKLANE_READ_TIMEOUT", "not-a-duration")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	})
}
