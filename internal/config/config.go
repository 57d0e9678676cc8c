// Package config loads the application configuration: which backend to
// talk to and any capture integrations.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Backend modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// BackendConfig selects and configures the data backend.
type BackendConfig struct {
	// Mode is "local" (embedded SQLite) or "remote" (hosted service).
	Mode string `mapstructure:"mode" yaml:"mode"`

	// BaseURL is the hosted service root, remote mode only.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// APIKey identifies this app to the hosted service.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	// DBPath is the SQLite file location, local mode only.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// EmailCaptureConfig configures the mailbox-to-inbox capture loop.
type EmailCaptureConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Server   string `mapstructure:"server" yaml:"server"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Mailbox  string `mapstructure:"mailbox" yaml:"mailbox"`
	Username string `mapstructure:"username" yaml:"username"`

	// PollIntervalSec is how often (in seconds) to check the mailbox.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Backend      BackendConfig      `mapstructure:"backend" yaml:"backend"`
	EmailCapture EmailCaptureConfig `mapstructure:"email_capture" yaml:"email_capture"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskdeck/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "taskdeck", "config.yaml")
}

// DefaultDBPath returns the default SQLite location for local mode.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "taskdeck.db")
	}
	return filepath.Join(home, ".local", "share", "taskdeck", "taskdeck.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			Mode:   ModeLocal,
			DBPath: DefaultDBPath(),
		},
		EmailCapture: EmailCaptureConfig{
			Port:            993,
			Mailbox:         "INBOX",
			PollIntervalSec: 300,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("backend.mode", ModeLocal)
	v.SetDefault("backend.db_path", DefaultDBPath())
	v.SetDefault("email_capture.port", 993)
	v.SetDefault("email_capture.mailbox", "INBOX")
	v.SetDefault("email_capture.poll_interval_sec", 300)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Backend.Mode != ModeLocal && cfg.Backend.Mode != ModeRemote {
		return nil, fmt.Errorf("config %s: unknown backend mode %q", path, cfg.Backend.Mode)
	}
	if cfg.Backend.Mode == ModeRemote && cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("config %s: remote mode requires backend.base_url", path)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backend", cfg.Backend)
	v.Set("email_capture", cfg.EmailCapture)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
