// Package config loads the drover daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds daemon configuration.
type Config struct {
	// Listen is the HTTP API bind address.
	Listen string `yaml:"listen"`
	// DBPath is the archive SQLite path. Empty disables archival.
	DBPath string `yaml:"db_path"`
	// MaxJobs bounds the in-memory job history.
	MaxJobs int `yaml:"max_jobs"`
	// MaxEvents bounds the in-memory event log.
	MaxEvents int `yaml:"max_events"`
	// HeartbeatSec is the live-subscriber keep-alive interval.
	HeartbeatSec int `yaml:"heartbeat_sec"`
	// Bridge configures the device-bridge executor.
	Bridge BridgeConfig `yaml:"bridge"`
}

// BridgeConfig configures the device-bridge CLI adapter.
type BridgeConfig struct {
	// Binary is the bridge executable, e.g. "adb".
	Binary string `yaml:"binary"`
	// SerialFlag is the flag that selects a target device.
	SerialFlag string `yaml:"serial_flag"`
	// TimeoutSec bounds a single bridge invocation.
	TimeoutSec int `yaml:"timeout_sec"`
	// WorkflowsDir holds named workflow YAML definitions.
	WorkflowsDir string `yaml:"workflows_dir"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Listen:       "127.0.0.1:7511",
		DBPath:       filepath.Join(home, ".drover", "drover.db"),
		MaxJobs:      300,
		MaxEvents:    600,
		HeartbeatSec: 15,
		Bridge: BridgeConfig{
			Binary:       "adb",
			SerialFlag:   "-s",
			TimeoutSec:   60,
			WorkflowsDir: filepath.Join(home, ".drover", "workflows"),
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to defaults
// when the file does not exist.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromHome loads configuration from ~/.drover/config.yaml.
func LoadConfigFromHome() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(filepath.Join(home, ".drover", "config.yaml"))
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.MaxJobs < 1 {
		return fmt.Errorf("max_jobs must be at least 1")
	}
	if c.MaxEvents < 1 {
		return fmt.Errorf("max_events must be at least 1")
	}
	if c.HeartbeatSec < 1 {
		return fmt.Errorf("heartbeat_sec must be at least 1")
	}
	if c.Bridge.Binary == "" {
		return fmt.Errorf("bridge binary must not be empty")
	}
	if c.Bridge.TimeoutSec < 1 {
		return fmt.Errorf("bridge timeout_sec must be at least 1")
	}
	return nil
}

// Heartbeat returns the keep-alive interval as a duration.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSec) * time.Second
}

// BridgeTimeout returns the bridge invocation timeout as a duration.
func (c *Config) BridgeTimeout() time.Duration {
	return time.Duration(c.Bridge.TimeoutSec) * time.Second
}
