package common

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

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	require.Len(t, cfg.LLM.Backends, 1)
	assert.Equal(t, "http://host.docker.internal:1234/v1", cfg.LLM.Backends[0].APIBase)
	assert.Equal(t, "ibm/granite-4-h-tiny", cfg.LLM.Backends[0].Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, int64(10<<20), cfg.Limits.MaxFileSizeBytes())
	assert.Equal(t, 50000, cfg.Limits.MaxTextLength)
}

func TestLoadConfigFileOverridesOnlyGivenKeys(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
llm:
  timeout: 45s
  backends:
    - name: local
      api_base: http://localhost:1234/v1
      model: small
    - name: remote
      api_base: https://api.example.com/v1
      model: large
      api_key: secret
limits:
  max_text_length: 1000
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 30*time.Second, cfg.LLM.ProbeInterval)
	require.Len(t, cfg.LLM.Backends, 2)
	assert.Equal(t, "remote", cfg.LLM.Backends[1].Name)
	assert.Equal(t, 1000, cfg.Limits.MaxTextLength)
	assert.Equal(t, 10, cfg.Limits.MaxFileSizeMB)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("LLM_API_BASE", "http://127.0.0.1:1234/v1")
	t.Setenv("LLM_MODEL", "qwen")
	t.Setenv("LLM_FALLBACK_API_BASE", "https://api.example.com/v1")
	t.Setenv("LLM_FALLBACK_API_KEY", "k")
	t.Setenv("LLM_TIMEOUT", "12")
	t.Setenv("SERVER_PORT", "8123")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Len(t, cfg.LLM.Backends, 2)
	assert.Equal(t, "http://127.0.0.1:1234/v1", cfg.LLM.Backends[0].APIBase)
	assert.Equal(t, "qwen", cfg.LLM.Backends[0].Model)
	assert.Equal(t, "remote", cfg.LLM.Backends[1].Name)
	assert.Equal(t, "qwen", cfg.LLM.Backends[1].Model)
	assert.Equal(t, "k", cfg.LLM.Backends[1].APIKey)
	assert.Equal(t, 12*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 8123, cfg.Server.Port)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.LLM.Backends = append(cfg.LLM.Backends, BackendConfig{Name: "local", APIBase: "ftp://x", Model: ""})
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	msg := err.Error()
	assert.Contains(t, msg, "server.port")
	assert.Contains(t, msg, "llm.backends[1].api_base")
	assert.Contains(t, msg, "llm.backends[1].model")
	assert.Contains(t, msg, "must be unique")
	assert.Contains(t, msg, "logging.level")
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "server: [not, a, map")
	_, err := LoadConfig(path)
	require.Error(t, err)
	ae, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeConfig, ae.Code)
}
