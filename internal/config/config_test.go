package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, "https://spela.svenskaspel.se", cfg.Site.PrimaryDomain)
	require.Equal(t, "https://www.svenskaspel.se", cfg.Site.FallbackDomain)
	require.True(t, cfg.AI.Enabled)
	require.Equal(t, 60*time.Second, cfg.AITimeout())
	require.Equal(t, 3, cfg.AI.MaxParallel)
	require.Equal(t, 45*time.Second, cfg.NavTimeout())
	require.Equal(t, "memory", cfg.Snapshots.Backend)
	require.Equal(t, 2*time.Hour, cfg.Window.VeryAggressiveWithin)
	require.Equal(t, 24*time.Hour, cfg.Window.NormalFreshness)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
server:
  port: 9090
ai:
  base_url: http://ai:3000
  timeout_seconds: 90
window:
  very_aggressive_within: 1h
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "http://ai:3000", cfg.AI.BaseURL)
	require.Equal(t, 90*time.Second, cfg.AITimeout())
	require.Equal(t, time.Hour, cfg.Window.VeryAggressiveWithin)
	// Untouched keys keep their defaults.
	require.Equal(t, "https://spela.svenskaspel.se", cfg.Site.PrimaryDomain)
}

func TestLoadMergesLocalOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
server:
  port: 9090
db:
  dsn: postgres://prod
`)
	writeFile(t, filepath.Join(dir, "config.local.yaml"), `
db:
  dsn: postgres://localhost/dev
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/dev", cfg.DB.DSN, "local override wins")
	require.Equal(t, 9090, cfg.Server.Port, "non-overridden keys survive")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing primary domain", func(c *Config) { c.Site.PrimaryDomain = "" }, "primary_domain"},
		{"ai enabled without base url", func(c *Config) { c.AI.BaseURL = "" }, "ai.base_url"},
		{"gcs backend without bucket", func(c *Config) { c.Snapshots.Backend = "gcs" }, "gcs_bucket"},
		{"local backend without dir", func(c *Config) { c.Snapshots.Backend = "local" }, "base_dir"},
		{"unknown snapshots backend", func(c *Config) { c.Snapshots.Backend = "s3" }, "snapshots.backend"},
		{
			"inverted window cutoffs",
			func(c *Config) { c.Window.VeryAggressiveWithin = 24 * time.Hour },
			"very_aggressive_within",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errSub)
		})
	}
}
