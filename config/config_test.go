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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
dingtalk:
  app_key: key1
  app_secret: secret1
  robot_code: bot1
  card_template_id: tmpl1
completion:
  base_url: http://localhost:9000
  model: qwen
  api_key: sk-test
session:
  timeout_minutes: 60
media:
  upload_enabled: true
prompt:
  custom: be concise
policy:
  allow_group: false
logging:
  level: debug
metrics:
  enabled: true
  addr: ":9100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "key1", cfg.DingTalk.AppKey)
	assert.Equal(t, "tmpl1", cfg.DingTalk.CardTemplateID)
	assert.Equal(t, "http://localhost:9000", cfg.Completion.BaseURL)
	assert.Equal(t, time.Hour, cfg.Session.Timeout())
	assert.True(t, cfg.Media.UploadEnabled)
	assert.Equal(t, "be concise", cfg.Prompt.Custom)
	assert.False(t, cfg.Policy.GroupAllowed())
	assert.True(t, cfg.Policy.DirectAllowed())
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
dingtalk:
  app_key: key1
  app_secret: secret1
  card_template_id: tmpl1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Session.Timeout())
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Completion.BaseURL)
	assert.True(t, cfg.Policy.GroupAllowed())
	assert.True(t, cfg.Policy.DirectAllowed())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Transport.ListenAddr)
}

func TestLoad_MissingCredentials(t *testing.T) {
	path := writeConfig(t, `
dingtalk:
  card_template_id: tmpl1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_key")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "dingtalk: [")
	_, err := Load(path)
	require.Error(t, err)
}
