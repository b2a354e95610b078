package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "token", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 100, cfg.Dify.PageLimit)
	assert.Equal(t, 10, cfg.Dify.MaxPages)
	assert.Equal(t, 3, cfg.Dify.WorkspaceBatch)
	assert.Equal(t, 5, cfg.Dify.AppBatch)
	assert.Equal(t, 1500*time.Millisecond, cfg.Autosave.Debounce())
	assert.Equal(t, 3*time.Second, cfg.Autosave.Cooldown())
	assert.Equal(t, "flush", cfg.Autosave.SwitchPolicy)
	assert.True(t, cfg.Autosave.AutosaveEnabled())
	assert.True(t, cfg.Sync.UseFallback())
	assert.Equal(t, 3*time.Second, cfg.Call.Connecting())
	assert.Zero(t, cfg.Call.MaxDuration())
	assert.Equal(t, "sqlite", cfg.Storage.Durable)
	assert.Equal(t, "memory", cfg.Storage.Session)
	assert.Equal(t, DefaultSingleUserOrgName, cfg.Auth.SingleUserOrgName)
	assert.Equal(t, 5*time.Second, cfg.Cleanup.CompanionTimeout())
	assert.Equal(t, 30*time.Second, cfg.Backend.DeleteTimeout())
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "agentdesk", cfg.Telemetry.ServiceName)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
gateway:
  port: 9999
  bind: lan
  auth:
    mode: password
    password: secret123
logging:
  level: debug
  consoleStyle: json
backend:
  url: https://live.example.com
  apiKey: live-key
dify:
  consoleOrigin: https://console.example.com
  adminEmail: admin@example.com
  adminPassword: pw
  workspaceId: ws-1
autosave:
  enabled: false
  debounceMs: 1000
  switchPolicy: cancel
storage:
  durable: redis
  redis:
    addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, "password", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "secret123", cfg.Gateway.Auth.Password)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)
	assert.Equal(t, "https://live.example.com", cfg.Backend.URL)
	assert.Equal(t, "ws-1", cfg.Dify.WorkspaceID)
	assert.False(t, cfg.Autosave.AutosaveEnabled())
	assert.Equal(t, time.Second, cfg.Autosave.Debounce())
	assert.Equal(t, "cancel", cfg.Autosave.SwitchPolicy)
	assert.Equal(t, "redis", cfg.Storage.Durable)
	assert.Equal(t, "localhost:6379", cfg.Storage.Redis.Addr)
	// untouched sections still get defaults
	assert.Equal(t, 8*time.Second, cfg.Dify.FetchTimeout())
	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGENTDESK_GATEWAY_PORT", "4242")
	t.Setenv("AGENTDESK_LOG_LEVEL", "DEBUG")
	t.Setenv("AGENTDESK_LIVE_API_URL", "https://live.test")
	t.Setenv("AGENTDESK_LIVE_API_KEY", "k")
	t.Setenv("AGENTDESK_DIFY_WORKSPACE_ID", "ws-env")
	t.Setenv("AGENTDESK_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4242, cfg.Gateway.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "https://live.test", cfg.Backend.URL)
	assert.Equal(t, "k", cfg.Backend.APIKey)
	assert.Equal(t, "ws-env", cfg.Dify.WorkspaceID)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestLoadExpandsSecrets(t *testing.T) {
	t.Setenv("LIVE_KEY", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  apiKey: ${LIVE_KEY}\n  url: https://x.test\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Backend.APIKey)
}

func TestExpandEnvVarsLeavesUnset(t *testing.T) {
	assert.Equal(t, "${AGENTDESK_SURELY_UNSET}", expandEnvVars("${AGENTDESK_SURELY_UNSET}"))
}

func TestRawRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.Empty(t, raw)

	SetValueAtPath(raw, []string{"autosave", "debounceMs"}, 900)
	require.NoError(t, SaveRaw(path, raw))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 900*time.Millisecond, cfg.Autosave.Debounce())
}
