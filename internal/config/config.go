// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/spf13/viper"

	"github.com/poolspel/matchdata-crawler/internal/window"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Site      SiteConfig      `mapstructure:"site"`
	AI        AIConfig        `mapstructure:"ai"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Queue     QueueConfig     `mapstructure:"queue"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	Window    window.Config   `mapstructure:"window"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SiteConfig names the target site domains and the failover probe.
type SiteConfig struct {
	PrimaryDomain  string `mapstructure:"primary_domain"`
	FallbackDomain string `mapstructure:"fallback_domain"`
	ProbePath      string `mapstructure:"probe_path"`
}

// AIConfig configures the remote extraction service client.
type AIConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	HealthTTLSec   int    `mapstructure:"health_ttl_seconds"`
	MaxParallel    int    `mapstructure:"max_parallel"`
}

// BrowserConfig configures the headless fallback browser.
type BrowserConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	NavTimeoutSec   int     `mapstructure:"nav_timeout_seconds"`
	CookieJarPath   string  `mapstructure:"cookie_jar_path"`
	QPS             float64 `mapstructure:"qps"`
	FingerprintSeed int64   `mapstructure:"fingerprint_seed"`
}

// QueueConfig governs pacing and retry behavior.
type QueueConfig struct {
	JitterSeed int64 `mapstructure:"jitter_seed"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// project selects the in-memory publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SnapshotsConfig selects where failed-page HTML goes.
type SnapshotsConfig struct {
	// Backend is one of "gcs", "local", "memory".
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	BaseDir   string `mapstructure:"base_dir"`
}

// Load builds a Config from disk/environment. When a config file is given,
// a sibling <name>.local.<ext> file is merged on top so developers can keep
// machine-local overrides out of version control.
func Load(path string) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if localPath, ok := localOverridePath(path); ok {
			override, err := load(localPath)
			if err != nil {
				return Config{}, fmt.Errorf("read local override: %w", err)
			}
			if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
				return Config{}, fmt.Errorf("merge local override: %w", err)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// localOverridePath turns config.yaml into config.local.yaml, reporting
// whether that file exists.
func localOverridePath(path string) (string, bool) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	local := filepath.Join(dir, name+".local"+ext)
	if _, err := os.Stat(local); err != nil {
		return "", false
	}
	return local, true
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("site.primary_domain", "https://spela.svenskaspel.se")
	v.SetDefault("site.fallback_domain", "https://www.svenskaspel.se")
	v.SetDefault("site.probe_path", "/stryktipset")
	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.base_url", "http://localhost:3000")
	v.SetDefault("ai.timeout_seconds", 60)
	v.SetDefault("ai.health_ttl_seconds", 30)
	v.SetDefault("ai.max_parallel", 3)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.cookie_jar_path", "")
	v.SetDefault("browser.qps", 0.5)
	v.SetDefault("snapshots.backend", "memory")
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("window.very_aggressive_within", 2*time.Hour)
	v.SetDefault("window.aggressive_within", 12*time.Hour)
	v.SetDefault("window.very_aggressive_freshness", 15*time.Minute)
	v.SetDefault("window.aggressive_freshness", time.Hour)
	v.SetDefault("window.normal_freshness", 24*time.Hour)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Site.PrimaryDomain == "" {
		return fmt.Errorf("site.primary_domain must be set")
	}
	if c.AI.Enabled && c.AI.BaseURL == "" {
		return fmt.Errorf("ai.base_url must be set when ai is enabled")
	}
	if c.AI.Enabled && c.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("ai.timeout_seconds must be > 0")
	}
	if c.Browser.Enabled && c.Browser.NavTimeoutSec <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0 when browser is enabled")
	}
	switch c.Snapshots.Backend {
	case "gcs":
		if c.Snapshots.GCSBucket == "" {
			return fmt.Errorf("snapshots.gcs_bucket must be set for the gcs backend")
		}
	case "local":
		if c.Snapshots.BaseDir == "" {
			return fmt.Errorf("snapshots.base_dir must be set for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("snapshots.backend must be one of gcs, local, memory")
	}
	if c.Window.VeryAggressiveWithin > c.Window.AggressiveWithin {
		return fmt.Errorf("window.very_aggressive_within must not exceed window.aggressive_within")
	}
	return nil
}

// AITimeout converts the remote client timeout into a duration.
func (c Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// NavTimeout converts the browser navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}
