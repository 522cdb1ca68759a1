package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
}

func TestDefaultConfig_Cadences(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timing.ScrollDebounce != 50*time.Millisecond {
		t.Errorf("scroll debounce default: got %v want 50ms", cfg.Timing.ScrollDebounce)
	}
	if cfg.Timing.InactiveThreshold != 10*time.Second {
		t.Errorf("inactive threshold default: got %v want 10s", cfg.Timing.InactiveThreshold)
	}
	if cfg.Timing.Retention != time.Hour {
		t.Errorf("retention default: got %v want 1h", cfg.Timing.Retention)
	}
	if cfg.Panel.Host != "127.0.0.1" {
		t.Errorf("panel must default to loopback, got %s", cfg.Panel.Host)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"zero reconcile interval", func(c *Config) { c.Timing.ReconcileInterval = 0 }},
		{"negative debounce", func(c *Config) { c.Timing.ScrollDebounce = -time.Millisecond }},
		{"heartbeat slower than threshold", func(c *Config) { c.Timing.HeartbeatInterval = 20 * time.Second }},
		{"panel port out of range", func(c *Config) { c.Panel.Port = 70000 }},
		{"nil timing", func(c *Config) { c.Timing = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("LIVEFOLLOW_STORE_PATH", "/tmp/follow.db")
	t.Setenv("LIVEFOLLOW_SCROLL_DEBOUNCE", "80ms")
	t.Setenv("LIVEFOLLOW_PANEL_PORT", "9100")

	cfg := LoadFromEnv()

	if cfg.Store.Path != "/tmp/follow.db" {
		t.Errorf("store path override ignored: %s", cfg.Store.Path)
	}
	if cfg.Timing.ScrollDebounce != 80*time.Millisecond {
		t.Errorf("debounce override ignored: %v", cfg.Timing.ScrollDebounce)
	}
	if cfg.Panel.Port != 9100 {
		t.Errorf("panel port override ignored: %d", cfg.Panel.Port)
	}
}

func TestLoadFromEnv_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("LIVEFOLLOW_RECONCILE_INTERVAL", "not-a-duration")

	cfg := LoadFromEnv()
	if cfg.Timing.ReconcileInterval != time.Second {
		t.Errorf("malformed duration should keep the default, got %v", cfg.Timing.ReconcileInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"store": {"path": "/var/lib/livefollow/sessions.db", "timeout": "10s"},
		"timing": {"heartbeat_interval": "2s", "retention": "90m"},
		"panel": {"port": 9200}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Store.Path != "/var/lib/livefollow/sessions.db" {
		t.Errorf("store path not loaded: %s", cfg.Store.Path)
	}
	if cfg.Timing.HeartbeatInterval != 2*time.Second {
		t.Errorf("heartbeat interval not loaded: %v", cfg.Timing.HeartbeatInterval)
	}
	if cfg.Timing.Retention != 90*time.Minute {
		t.Errorf("retention not loaded: %v", cfg.Timing.Retention)
	}
	// Unspecified fields keep their defaults.
	if cfg.Timing.ScrollDebounce != 50*time.Millisecond {
		t.Errorf("unspecified debounce should keep default, got %v", cfg.Timing.ScrollDebounce)
	}
	if cfg.Panel.Port != 9200 {
		t.Errorf("panel port not loaded: %d", cfg.Panel.Port)
	}
}

func TestLoadFromFile_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"timing": {"heartbeat_interval": "30s"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Error("heartbeat >= inactive threshold must fail validation")
	}
}

func TestLoadWithPrecedence_FallsBackOnMissingFile(t *testing.T) {
	cfg := LoadWithPrecedence(filepath.Join(t.TempDir(), "missing.json"))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fallback configuration must validate: %v", err)
	}
}
