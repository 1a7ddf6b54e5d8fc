// Package config loads synclist settings from the config file,
// environment, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the synclist tool chain.
type Config struct {
	// DBPath is the local SQLite task store.
	DBPath string `yaml:"db_path" mapstructure:"db_path"`

	// ServerURL is the base URL the sync client talks to.
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`

	// ListenAddr is the address the serve command binds to.
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr"`

	// SyncInterval is how often the daemon reconciles.
	SyncInterval time.Duration `yaml:"sync_interval" mapstructure:"sync_interval"`

	// InboxDir is watched for capture files. Empty disables the watcher.
	InboxDir string `yaml:"inbox_dir" mapstructure:"inbox_dir"`

	// LogFile receives daemon output. Empty logs to stderr.
	LogFile string `yaml:"log_file" mapstructure:"log_file"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		DBPath:       filepath.Join(baseDir(), "synclist.db"),
		ServerURL:    "http://localhost:8484",
		ListenAddr:   ":8484",
		SyncInterval: 30 * time.Second,
	}
}

// Load merges the config file (if present) and SYNCLIST_* environment
// variables over the defaults. An empty path means the default location.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("SYNCLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key := range map[string]struct{}{
		"db_path": {}, "server_url": {}, "listen_addr": {},
		"sync_interval": {}, "inbox_dir": {}, "log_file": {},
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the merged settings.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive (got %s)", c.SyncInterval)
	}
	return nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

// WriteSkeleton writes a commented starter config to path. It refuses
// to overwrite an existing file.
func WriteSkeleton(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	header := "# synclist configuration. Environment variables with the\n" +
		"# SYNCLIST_ prefix override any value here.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".synclist"
	}
	return filepath.Join(home, ".synclist")
}
