package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.False(t, cfg.Storage.ES.Enabled())
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval())
	assert.Equal(t, 30*time.Second, cfg.Scheduler.FetchTimeout())
	assert.Equal(t, 0.95, cfg.Dedup.TitleThreshold)
	assert.Equal(t, 7*24*time.Hour, cfg.Dedup.Window())
	assert.Equal(t, 0.6, cfg.Classifier.ConfidenceThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Priority.MaxBreakingAge())
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, 3, cfg.Retention.MaintenanceHour)
	assert.Empty(t, cfg.Sources)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
scheduler:
  intervalMinutes: 5
dedup:
  titleThreshold: 0.9
sources:
  - id: newsapi
    name: NewsAPI
    type: api
    priority: 1
    rateLimitPerHour: 100
`)
	t.Setenv(configPathEnv, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval())
	assert.Equal(t, 0.9, cfg.Dedup.TitleThreshold)
	// Settings the file omits keep their defaults.
	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrentJobs)
	assert.Equal(t, 0.7, cfg.Dedup.KeywordThreshold)

	require.Len(t, cfg.Sources, 1)
	src := cfg.Sources[0].Source()
	assert.Equal(t, "newsapi", src.ID)
	assert.True(t, src.IsActive)
	assert.Equal(t, 100, src.RateLimitPerHour)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
`)
	t.Setenv(configPathEnv, path)
	t.Setenv(portEnv, "7070")
	t.Setenv(storageBackendEnv, "pg")
	t.Setenv(databaseDSNEnv, "postgres://localhost/news")
	t.Setenv(esAddressesEnv, "http://es1:9200, http://es2:9200")

	cfg, err := Load()
	require.NoError(t, err)

	// Environment wins over the file.
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, BackendPG, cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/news", cfg.Storage.DSN)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Storage.ES.Addresses)
	assert.True(t, cfg.Storage.ES.Enabled())
}

func TestLoadValidation(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		t.Setenv(portEnv, "not-a-port")
		_, err := Load()
		assert.ErrorContains(t, err, "port")
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv(storageBackendEnv, "redis")
		_, err := Load()
		assert.ErrorContains(t, err, "backend")
	})

	t.Run("pg backend requires dsn", func(t *testing.T) {
		t.Setenv(storageBackendEnv, "pg")
		_, err := Load()
		assert.ErrorContains(t, err, "dsn")
	})

	t.Run("maintenance hour range", func(t *testing.T) {
		path := writeConfig(t, `
retention:
  maintenanceHour: 24
`)
		t.Setenv(configPathEnv, path)
		_, err := Load()
		assert.ErrorContains(t, err, "maintenance hour")
	})

	t.Run("source seed needs an id", func(t *testing.T) {
		path := writeConfig(t, `
sources:
  - name: Nameless
`)
		t.Setenv(configPathEnv, path)
		_, err := Load()
		assert.ErrorContains(t, err, "missing id")
	})

	t.Run("missing config file", func(t *testing.T) {
		t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load()
		assert.ErrorContains(t, err, "read config")
	})
}
