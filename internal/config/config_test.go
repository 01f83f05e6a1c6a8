package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8097, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Empty(t, cfg.Server.JWTSecret)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.NATS.Enabled)
	assert.False(t, cfg.EventLog.Enabled)

	assert.Equal(t, 30*time.Second, cfg.Engine.ScanInterval)
	assert.Equal(t, time.Minute, cfg.Engine.DetectionInterval)
	assert.Equal(t, 5*time.Minute, cfg.Engine.BaselineInterval)
	assert.Equal(t, 15*time.Minute, cfg.Engine.IntelRefreshInterval)
	assert.Equal(t, time.Hour, cfg.Engine.CleanupInterval)

	assert.Equal(t, 75, cfg.Scoring.DetectionThreshold)
	assert.Equal(t, 25, cfg.Scoring.AnomalyThreshold)
	assert.Equal(t, int64(5000), cfg.Scoring.ResponseTimeWarnMs)
	assert.Equal(t, int64(1048576), cfg.Scoring.PayloadWarnBytes)

	assert.Equal(t, 15*time.Minute, cfg.Detection.BruteForceWindow)
	assert.Equal(t, 5, cfg.Detection.BruteForceCount)
	assert.Equal(t, int64(10485760), cfg.Detection.ExfiltrationBytes)

	assert.True(t, cfg.Response.EnableAutoResponse)
	assert.Equal(t, 90, cfg.Response.AutoBlockThreshold)
	assert.Equal(t, 80, cfg.Response.QuarantineThreshold)
	assert.Equal(t, 85, cfg.Response.EscalationThreshold)
	assert.Equal(t, time.Hour, cfg.Response.QuarantineTTL)

	assert.Equal(t, 30, cfg.Retention.DataRetentionDays)
	assert.Equal(t, 168*time.Hour, cfg.Retention.ResolvedFindingAge)

	assert.Empty(t, cfg.Channels)
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  port: 9000
  jwt_secret: file-secret
logging:
  level: debug
scoring:
  detection_threshold: 60
  high_risk_countries: ["XX", "YY"]
channels:
  - type: webhook
    url: http://alerts.internal/hook
  - type: slack
    url: https://hooks.slack.com/services/T000/B000/XXX
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Server.JWTSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 60, cfg.Scoring.DetectionThreshold)
	assert.Equal(t, []string{"XX", "YY"}, cfg.Scoring.HighRiskCountries)

	// File values not set fall back to defaults.
	assert.Equal(t, 25, cfg.Scoring.AnomalyThreshold)

	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, "webhook", cfg.Channels[0].Type)
	assert.Equal(t, "slack", cfg.Channels[1].Type)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CROWSNEST_SERVER_PORT", "9200")
	t.Setenv("CROWSNEST_LOGGING_LEVEL", "warn")
	t.Setenv("CROWSNEST_RESPONSE_ENABLE_AUTO_RESPONSE", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, cfg.Response.EnableAutoResponse)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "out of range",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "out of range",
		},
		{
			name:    "negative detection threshold",
			mutate:  func(c *Config) { c.Scoring.DetectionThreshold = -1 },
			wantErr: "must not be negative",
		},
		{
			name:    "zero retention days",
			mutate:  func(c *Config) { c.Retention.DataRetentionDays = 0 },
			wantErr: "must be positive",
		},
		{
			name:    "zero quarantine ttl",
			mutate:  func(c *Config) { c.Response.QuarantineTTL = 0 },
			wantErr: "must be positive",
		},
		{
			name: "channel without url",
			mutate: func(c *Config) {
				c.Channels = []ChannelConfig{{Type: "webhook"}}
			},
			wantErr: "requires a url",
		},
		{
			name: "unknown channel type",
			mutate: func(c *Config) {
				c.Channels = []ChannelConfig{{Type: "pager", URL: "http://x"}}
			},
			wantErr: "unknown channel type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
