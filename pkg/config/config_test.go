package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1440, cfg.Polling.SinceMinutes)
	assert.Equal(t, 60, cfg.Polling.IntervalSeconds)
	assert.Equal(t, "data/logwarden.db", cfg.Database.Path)
	assert.True(t, cfg.Alerts.Stdout)
	assert.False(t, cfg.Alerts.Webhook.Enabled)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
storage:
  connection_string: endpoint=localhost:9000;accessKey=a;secretKey=s
  containers: [insights-logs-storageread, insights-logs-auditevent]
polling:
  since_minutes: 120
alerts:
  stdout: false
  webhook:
    enabled: true
    url: https://hooks.example.net/T000/B000
rules:
  - name: public-access
    when:
      category: StorageRead
      contains:
        field: requestURI
        any: ["/public/"]
  - name: everything
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"insights-logs-storageread", "insights-logs-auditevent"}, cfg.Storage.Containers)
	assert.Equal(t, 120, cfg.Polling.SinceMinutes)
	assert.Equal(t, 60, cfg.Polling.IntervalSeconds, "unset keys keep defaults")
	assert.False(t, cfg.Alerts.Stdout)
	assert.True(t, cfg.Alerts.Webhook.Enabled)

	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, "public-access", cfg.Rules[0].Name)
	assert.Equal(t, "StorageRead", cfg.Rules[0].When.Category)
	require.NotNil(t, cfg.Rules[0].When.Contains)
	assert.Equal(t, "requestURI", cfg.Rules[0].When.Contains.Field)
	assert.Equal(t, []string{"/public/"}, cfg.Rules[0].When.Contains.Any)
	assert.Nil(t, cfg.Rules[0].When.Contains.All)
	assert.Nil(t, cfg.Rules[1].When.Contains)
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("LOGWARDEN_STORAGE_CONNECTION_STRING", "endpoint=minio:9000;accessKey=a;secretKey=s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "endpoint=minio:9000;accessKey=a;secretKey=s", cfg.Storage.ConnectionString)
	require.NoError(t, cfg.Validate())
}

func TestValidateMissingConnectionString(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingConnectionString)
}

func TestValidateWebhookNeedsURL(t *testing.T) {
	cfg := Default()
	cfg.Storage.ConnectionString = "endpoint=x"
	cfg.Alerts.Webhook.Enabled = true
	assert.Error(t, cfg.Validate())
}

func TestValidateRules(t *testing.T) {
	cfg := Default()
	cfg.Storage.ConnectionString = "endpoint=x"

	path := writeConfig(t, `
rules:
  - name: ""
`)
	loaded, err := Load(path)
	require.NoError(t, err)
	loaded.Storage.ConnectionString = "endpoint=x"
	assert.Error(t, loaded.Validate())

	cfg.Rules = nil
	assert.NoError(t, cfg.Validate())
}
