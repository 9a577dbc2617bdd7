package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
auth:
  method: apikey
  api_key: s3cret
wordpress:
  base_url: https://example.org
  sponsor_groups:
    - slug: gold
      label: Gold
supabase:
  url: https://proj.supabase.co
  anon_key: anon
schedule:
  default_duration: 45m
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "apikey", cfg.Auth.Method)
	assert.Equal(t, "https://example.org", cfg.WordPress.BaseURL)
	assert.Equal(t, []SponsorGroup{{Slug: "gold", Label: "Gold"}}, cfg.WordPress.SponsorGroups)
	assert.Equal(t, []string{"casinos", "tribal_offices", "associate_members"}, cfg.WordPress.SponsorTypes)
	assert.Equal(t, 30*time.Second, cfg.WordPress.Timeout)
	assert.True(t, cfg.Supabase.Enabled())
	assert.Equal(t, 45*time.Minute, cfg.Schedule.DefaultDuration)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://cniga.com", cfg.WordPress.BaseURL)
	assert.Equal(t, "wigc-event", cfg.WordPress.EventPostType)
	assert.Equal(t, DefaultSponsorGroups(), cfg.WordPress.SponsorGroups)
	assert.Equal(t, "America/Los_Angeles", cfg.Schedule.Timezone)
	assert.False(t, cfg.Supabase.Enabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("WIGC_SERVER_PORT", "7070")
	t.Setenv("WIGC_SUPABASE_ANON_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Supabase.AnonKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"apikey without key", func(c *Config) { c.Auth.Method = "apikey" }, "auth.api_key"},
		{"unknown auth", func(c *Config) { c.Auth.Method = "oauth" }, "auth.method"},
		{"file source without path", func(c *Config) { c.Source.Type = "file" }, "source.path"},
		{"unknown backend", func(c *Config) { c.Favorites.Backend = "redis" }, "favorites.backend"},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestYAMLMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Auth.APIKey = "s3cret"
	cfg.Supabase.AnonKey = "anon"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "s3cret")
	assert.NotContains(t, string(out), "anon\n")
	assert.Equal(t, "s3cret", cfg.Auth.APIKey, "the original is untouched")

	var round map[string]any
	require.NoError(t, yaml.Unmarshal(out, &round))
	server := round["server"].(map[string]any)
	assert.Equal(t, 8080, server["port"])
	assert.Equal(t, "15s", server["read_timeout"])
}
