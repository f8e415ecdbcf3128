package model

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

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  base_url: https://liman.example.com/\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://liman.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "/api", cfg.Server.APIPrefix)
	assert.Equal(t, "/api/auth", cfg.Server.AuthPrefix)
	assert.Equal(t, 30, cfg.Server.TimeoutSec)
	assert.Equal(t, "liman-key", cfg.Push.AppKey)
	assert.Equal(t, "/api/broadcasting/auth", cfg.Push.AuthPath)
	assert.Equal(t, time.Second, cfg.Seen.Delay())
	assert.True(t, cfg.Alerts.Desktop)
	assert.Equal(t, 30, cfg.Journal.RetentionDays)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: http://10.0.0.5
  timeout_sec: 5
push:
  app_key: other-key
seen:
  delay_ms: 250
  rate_per_sec: 2
  burst: 1
alerts:
  sound: false
log:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Server.TimeoutSec)
	assert.Equal(t, "other-key", cfg.Push.AppKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Seen.Delay())
	assert.Equal(t, 2.0, cfg.Seen.RatePerSec)
	assert.False(t, cfg.Alerts.Sound)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestSeenConfig_Delay(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, SeenConfig{DelayMs: 250}.Delay())
	assert.Less(t, SeenConfig{DelayMs: 0}.Delay(), time.Duration(0))
}

func TestLoadConfig_ZeroSeenDelay(t *testing.T) {
	path := writeConfig(t, "server:\n  base_url: https://liman.example.com/\nseen:\n  delay_ms: 0\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Seen.DelayMs)
	assert.Less(t, cfg.Seen.Delay(), time.Duration(0))
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("LIMAN_SERVER_BASE_URL", "https://env.example.com")
	path := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Server.BaseURL)
}

func TestLoadConfig_MissingBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BaseURL")

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.BaseURL)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://liman.example.com
  timeout_sec: 0
log:
  level: loud
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TimeoutSec")
	assert.Contains(t, err.Error(), "Level")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	cfg.Server.BaseURL = "https://saved.example.com"
	cfg.Seen.DelayMs = 500

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://saved.example.com", loaded.Server.BaseURL)
	assert.Equal(t, 500, loaded.Seen.DelayMs)
}

func TestPushURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AppConfig
		want    string
		wantErr bool
	}{
		{
			name: "https becomes wss",
			cfg:  AppConfig{Server: ServerConfig{BaseURL: "https://liman.example.com"}, Push: PushConfig{AppKey: "liman-key"}},
			want: "wss://liman.example.com/app/liman-key",
		},
		{
			name: "http becomes ws",
			cfg:  AppConfig{Server: ServerConfig{BaseURL: "http://10.0.0.5:8080"}, Push: PushConfig{AppKey: "k"}},
			want: "ws://10.0.0.5:8080/app/k",
		},
		{
			name: "explicit override",
			cfg:  AppConfig{Server: ServerConfig{BaseURL: "https://liman.example.com"}, Push: PushConfig{WSURL: "wss://ws.example.com/app/x"}},
			want: "wss://ws.example.com/app/x",
		},
		{
			name:    "unsupported scheme",
			cfg:     AppConfig{Server: ServerConfig{BaseURL: "ftp://liman.example.com"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.PushURL()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHost(t *testing.T) {
	cfg := AppConfig{Server: ServerConfig{BaseURL: "https://liman.example.com:8443"}}
	assert.Equal(t, "liman.example.com:8443", cfg.Host())
}
