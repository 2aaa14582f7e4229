// Package config loads roadsync configuration from file, environment,
// and defaults.
//
// Precedence is environment > config file > defaults. Environment
// variables use the ROADSYNC_ prefix with dots replaced by
// underscores, so backend.url becomes ROADSYNC_BACKEND_URL.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	// StateDir holds the local database, session token, and logs.
	StateDir string `mapstructure:"state_dir"`

	Backend BackendConfig `mapstructure:"backend"`
	Timeout TimeoutConfig `mapstructure:"timeout"`
	Hub     HubConfig     `mapstructure:"hub"`
	Log     LogConfig     `mapstructure:"log"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// BackendConfig points at a shared Postgres backend. Both URL and Key
// must be present to run online; otherwise the local SQLite store is
// used.
type BackendConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
}

// TimeoutConfig bounds storage calls.
type TimeoutConfig struct {
	Read  time.Duration `mapstructure:"read"`
	Write time.Duration `mapstructure:"write"`
}

// HubConfig configures the WebSocket update hub.
type HubConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures daemon log rotation.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AuthConfig configures local session signing.
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

// Online reports whether a shared backend is fully configured.
func (c *Config) Online() bool {
	return c.Backend.URL != "" && c.Backend.Key != ""
}

// DatabasePath is the local SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StateDir, "roadsync.db")
}

// LogPath is the daemon log location, defaulting into the state dir.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.StateDir, "roadsync.log")
}

// Load reads configuration. path, when non-empty, names an explicit
// config file; otherwise roadsync.yaml is searched in the working
// directory and stateDir. A missing config file is not an error.
func Load(path, stateDir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("state_dir", stateDir)
	// Empty defaults register the keys so environment overrides reach
	// Unmarshal.
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.key", "")
	v.SetDefault("log.file", "")
	v.SetDefault("timeout.read", "8s")
	v.SetDefault("timeout.write", "15s")
	v.SetDefault("hub.addr", ":8377")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("auth.secret", "roadsync-local-dev-secret")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("roadsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if stateDir != "" {
			v.AddConfigPath(stateDir)
		}
	}

	v.SetEnvPrefix("ROADSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would fail at first use.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir must be set")
	}
	if (c.Backend.URL == "") != (c.Backend.Key == "") {
		return fmt.Errorf("backend.url and backend.key must be set together")
	}
	if c.Timeout.Read <= 0 || c.Timeout.Write <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
