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
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 24, cfg.Workflow.CooldownHours)
	assert.Equal(t, 24*time.Hour, cfg.Workflow.Cooldown())
	assert.Equal(t, 15*time.Second, cfg.Workflow.PresencePollInterval)
	assert.Equal(t, "console", cfg.Logger.Format)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
workflow:
  cooldown_hours: 48
discord:
  channels:
    discord_whitelist_channel_id: "111"
`), 0o644))

	t.Setenv("PORTAL_SERVER_PORT", "9100")
	t.Setenv("PORTAL_DATABASE_URL", "postgres://portal@localhost/portal")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 48, cfg.Workflow.CooldownHours)
	assert.Equal(t, "postgres://portal@localhost/portal", cfg.Database.URL)
	assert.Equal(t, "111", cfg.Lookup("DISCORD_WHITELIST_CHANNEL_ID"))

	t.Setenv("DISCORD_WHITELIST_CHANNEL_ID", "222")
	assert.Equal(t, "222", cfg.Lookup("DISCORD_WHITELIST_CHANNEL_ID"))
	assert.Empty(t, cfg.Lookup("DISCORD_GANG_CHANNEL_ID"))
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.Database.URL = "postgres://x"
	cfg.Auth.JWTSecret = defaultJWTSecret
	cfg.Workflow = WorkflowConfig{
		CooldownHours:        24,
		NotificationTimeout:  10 * time.Second,
		PresencePollInterval: 15 * time.Second,
		EligibilityPoll:      30 * time.Second,
	}
	assert.NoError(t, cfg.Validate())

	cfg.Server.Mode = "release"
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveIntervals(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Database.URL = "postgres://x"
		cfg.Workflow = WorkflowConfig{
			NotificationTimeout:  10 * time.Second,
			PresencePollInterval: 15 * time.Second,
			EligibilityPoll:      30 * time.Second,
		}
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		field  string
		mutate func(*WorkflowConfig)
	}{
		{"workflow.eligibility_poll", func(w *WorkflowConfig) { w.EligibilityPoll = 0 }},
		{"workflow.presence_poll_interval", func(w *WorkflowConfig) { w.PresencePollInterval = -time.Second }},
		{"workflow.notification_timeout", func(w *WorkflowConfig) { w.NotificationTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg.Workflow)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDefaultsValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORTAL_DATABASE_URL", "postgres://portal@localhost/portal")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}
