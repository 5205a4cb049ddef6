// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BackendConfig points at the ingestion backend that executes crawls and
// uploads.
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ResolverConfig configures the DNS-over-HTTPS domain existence check.
type ResolverConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// IngestConfig governs crawl request defaults.
type IngestConfig struct {
	MaxDepthDefault      int `mapstructure:"max_depth_default"`
	ProgressPollSeconds  int `mapstructure:"progress_poll_seconds"`
	SessionIdleMinutes   int `mapstructure:"session_idle_minutes"`
	MaxSessionsPerServer int `mapstructure:"max_sessions"`
}

// DBConfig controls access to the relational database. An empty DSN keeps
// operation history in memory only.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("backend.base_url", "http://localhost:9000")
	v.SetDefault("backend.timeout_seconds", 30)
	v.SetDefault("resolver.enabled", true)
	v.SetDefault("resolver.base_url", "https://dns.google")
	v.SetDefault("resolver.timeout_seconds", 2)
	v.SetDefault("ingest.max_depth_default", 2)
	v.SetDefault("ingest.progress_poll_seconds", 2)
	v.SetDefault("ingest.session_idle_minutes", 30)
	v.SetDefault("ingest.max_sessions", 256)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must be set")
	}
	if c.Backend.TimeoutSeconds <= 0 {
		return fmt.Errorf("backend.timeout_seconds must be > 0")
	}
	if c.Resolver.Enabled && c.Resolver.BaseURL == "" {
		return fmt.Errorf("resolver.base_url must be set when the resolver is enabled")
	}
	if c.Ingest.MaxDepthDefault <= 0 {
		return fmt.Errorf("ingest.max_depth_default must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// BackendTimeout converts the backend timeout into a duration.
func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// ResolverTimeout converts the resolver timeout into a duration.
func (c Config) ResolverTimeout() time.Duration {
	return time.Duration(c.Resolver.TimeoutSeconds) * time.Second
}

// ProgressPollInterval converts the poll setting into a duration.
func (c Config) ProgressPollInterval() time.Duration {
	return time.Duration(c.Ingest.ProgressPollSeconds) * time.Second
}
