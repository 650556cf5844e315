// ABOUTME: Tests for configuration loading, env expansion and validation.
// ABOUTME: Covers YAML parsing, defaults, env overrides and duration parsing.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9090"
network:
  url: "wss://relay.example.com/session"
  client_name: "esika-bot"
storage:
  dsn: "file:creds.db"
session:
  max_attempts: 3
  retry_delay: 10s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "wss://relay.example.com/session", cfg.Network.URL)
	assert.Equal(t, "esika-bot", cfg.Network.ClientName)
	assert.Equal(t, "file:creds.db", cfg.Storage.DSN)
	assert.Equal(t, 3, cfg.Session.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Session.RetryDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "auth_session", cfg.Storage.Dir)
	assert.Empty(t, cfg.Storage.DSN)
	assert.Equal(t, 5, cfg.Session.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Session.RetryDelay)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_RELAY_URL", "wss://relay.internal/session")

	path := writeConfig(t, `
network:
  url: "${TEST_RELAY_URL}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.internal/session", cfg.Network.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("DATABASE_URL", "file:env.db")
	t.Setenv("LOG_LEVEL", "warn")

	path := writeConfig(t, `
server:
  http_addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.HTTPAddr)
	assert.Equal(t, "file:env.db", cfg.Storage.DSN)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_InvalidRetryDelay(t *testing.T) {
	path := writeConfig(t, `
session:
  retry_delay: "soon"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry_delay")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_MaxAttempts(t *testing.T) {
	cfg := Default()
	cfg.Session.MaxAttempts = -1
	assert.Error(t, cfg.Validate())

	cfg.Session.MaxAttempts = 1
	assert.NoError(t, cfg.Validate())
}

func TestValidate_TailscaleHostname(t *testing.T) {
	cfg := Default()
	cfg.Tailscale.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Tailscale.Hostname = "wa-gateway"
	assert.NoError(t, cfg.Validate())
}
