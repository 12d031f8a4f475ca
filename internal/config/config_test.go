package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgorbach/review-assignment-service/internal/config"
)

var knownEnvKeys = []string{
	"LOG_LEVEL", "STORAGE_TYPE", "ENABLE_RESET",
	"HTTP_ADDRESS", "HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT",
	"HTTP_IDLE_TIMEOUT", "HTTP_SHUTDOWN_TIMEOUT",
	"DATABASE_URL", "DB_CONNECT_RETRIES", "DB_CONNECT_BACKOFF", "MIGRATIONS_DIR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range knownEnvKeys {
		// t.Setenv registers restoration of the original value.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.FromEnv()

	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, config.StoragePostgres, cfg.StorageType)
	assert.False(t, cfg.EnableReset)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, 15, cfg.DB.ConnectRetries)
	assert.Equal(t, 2*time.Second, cfg.DB.ConnectBackoff)
	assert.Equal(t, "./migrations", cfg.DB.MigrationsDir)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDRESS", ":9090")
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("ENABLE_RESET", "true")
	t.Setenv("DB_CONNECT_BACKOFF", "500ms")

	cfg, err := config.FromEnv()

	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, config.StorageMemory, cfg.StorageType)
	assert.True(t, cfg.EnableReset)
	assert.Equal(t, 500*time.Millisecond, cfg.DB.ConnectBackoff)
}

func TestMustLoad_ReadsYAMLWithEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENABLE_RESET", "true")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("log_level: debug\nhttp:\n  address: \":9999\"\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg := config.MustLoad(path)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9999", cfg.HTTP.Address)
	assert.True(t, cfg.EnableReset, "environment wins over the file")
	assert.Equal(t, config.StoragePostgres, cfg.StorageType, "unset fields keep defaults")
}
