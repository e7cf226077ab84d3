package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "criteria.yaml", `
dialect: postgres
dsn: postgres://localhost/rhq
log:
  level: debug
  format: json
retry:
  max_attempts: 4
  min_wait: 50ms
  max_wait: 2s
  throw_on_exhaustion: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, "postgres://localhost/rhq", cfg.DSN)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.MinWait)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxWait)
	assert.True(t, cfg.Retry.ThrowOnExhaustion)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := writeFile(t, "criteria.yaml", "dialect: postgres\nretry:\n  max_attempts: 4\n")
	t.Setenv("CRITERIA_DIALECT", "mysql")
	t.Setenv("CRITERIA_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("CRITERIA_RETRY_MAX_WAIT", "3s")
	t.Setenv("CRITERIA_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Dialect)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Retry.MaxWait)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")

	path := writeFile(t, "bad.yaml", "dialect: db2\nlog:\n  format: xml\nretry:\n  max_attempts: 0\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db2")
	assert.Contains(t, err.Error(), "xml")
	assert.Contains(t, err.Error(), "max attempts")
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "DEBUG"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = LogConfig{Level: "loud"}.SlogLevel()
	assert.Error(t, err)
}
