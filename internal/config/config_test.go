package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Listen != "127.0.0.1:7511" {
		t.Errorf("Wrong default listen: %s", cfg.Listen)
	}
	if cfg.MaxJobs != 300 || cfg.MaxEvents != 600 || cfg.HeartbeatSec != 15 {
		t.Errorf("Wrong default bounds: %+v", cfg)
	}
	if cfg.Bridge.Binary != "adb" || cfg.Bridge.SerialFlag != "-s" {
		t.Errorf("Wrong default bridge: %+v", cfg.Bridge)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults must validate: %v", err)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Listen != DefaultConfig().Listen {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `listen: "0.0.0.0:9000"
max_jobs: 50
bridge:
  binary: adb-wrapper
  timeout_sec: 120
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" || cfg.MaxJobs != 50 {
		t.Errorf("Overrides not applied: %+v", cfg)
	}
	if cfg.Bridge.Binary != "adb-wrapper" {
		t.Errorf("Nested override not applied: %+v", cfg.Bridge)
	}
	// Untouched fields keep their defaults.
	if cfg.MaxEvents != 600 || cfg.HeartbeatSec != 15 {
		t.Errorf("Defaults lost on partial config: %+v", cfg)
	}
	if cfg.BridgeTimeout() != 120*time.Second {
		t.Errorf("Wrong bridge timeout: %v", cfg.BridgeTimeout())
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_jobs: 0\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected validation error for max_jobs: 0")
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Heartbeat() != 15*time.Second {
		t.Errorf("Wrong heartbeat: %v", cfg.Heartbeat())
	}
	if cfg.BridgeTimeout() != 60*time.Second {
		t.Errorf("Wrong bridge timeout: %v", cfg.BridgeTimeout())
	}
}
