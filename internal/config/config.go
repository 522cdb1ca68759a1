package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the system-wide settings: where the shared store lives, the
// protocol cadences, and the optional local panel endpoint.
type Config struct {
	Store  *StoreConfig  `json:"store"`
	Timing *TimingConfig `json:"timing"`
	Panel  *PanelConfig  `json:"panel"`
}

// StoreConfig locates the device-local session store.
type StoreConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// TimingConfig carries every protocol cadence. The defaults encode the
// design's consistency model: push for latency (notify + debounce), poll for
// correctness (reconcile), and seconds-scale liveness thresholds.
type TimingConfig struct {
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	PresenceInterval  time.Duration `json:"presence_interval"`
	ReconcileInterval time.Duration `json:"reconcile_interval"`
	PruneInterval     time.Duration `json:"prune_interval"`
	ScrollDebounce    time.Duration `json:"scroll_debounce"`
	InactiveThreshold time.Duration `json:"inactive_threshold"`
	NoticeTTL         time.Duration `json:"notice_ttl"`
	Retention         time.Duration `json:"retention"`
}

// PanelConfig configures the read-only local view bridge.
type PanelConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// DefaultConfig returns production defaults: store beside the working
// directory, panel bound to loopback only.
func DefaultConfig() *Config {
	return &Config{
		Store: &StoreConfig{
			Path:    "./livefollow.db",
			Timeout: 30 * time.Second,
		},
		Timing: &TimingConfig{
			HeartbeatInterval: 3 * time.Second,
			PresenceInterval:  2 * time.Second,
			ReconcileInterval: time.Second,
			PruneInterval:     time.Minute,
			ScrollDebounce:    50 * time.Millisecond,
			InactiveThreshold: 10 * time.Second,
			NoticeTTL:         5 * time.Second,
			Retention:         time.Hour,
		},
		Panel: &PanelConfig{
			Host:         "127.0.0.1",
			Port:         8791,
			WriteTimeout: 10 * time.Second,
			BufferSize:   16,
		},
	}
}

// Validate rejects configurations that would stall or misbehave at runtime.
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}

	if c.Timing == nil {
		return fmt.Errorf("timing configuration is required")
	}
	for name, d := range map[string]time.Duration{
		"heartbeat interval": c.Timing.HeartbeatInterval,
		"presence interval":  c.Timing.PresenceInterval,
		"reconcile interval": c.Timing.ReconcileInterval,
		"prune interval":     c.Timing.PruneInterval,
		"scroll debounce":    c.Timing.ScrollDebounce,
		"inactive threshold": c.Timing.InactiveThreshold,
		"notice TTL":         c.Timing.NoticeTTL,
		"retention":          c.Timing.Retention,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	// A heartbeat slower than the inactivity threshold would make every
	// leader look dead to staleness-aware UIs.
	if c.Timing.HeartbeatInterval >= c.Timing.InactiveThreshold {
		return fmt.Errorf("heartbeat interval must be shorter than inactive threshold")
	}

	if c.Panel == nil {
		return fmt.Errorf("panel configuration is required")
	}
	if c.Panel.Port <= 0 || c.Panel.Port > 65535 {
		return fmt.Errorf("panel port must be between 1 and 65535")
	}
	if c.Panel.Host == "" {
		return fmt.Errorf("panel host cannot be empty")
	}
	if c.Panel.WriteTimeout <= 0 {
		return fmt.Errorf("panel write timeout must be positive")
	}
	if c.Panel.BufferSize <= 0 {
		return fmt.Errorf("panel buffer size must be positive")
	}

	return nil
}

// LoadFromEnv overrides defaults with LIVEFOLLOW_* environment variables.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if path := os.Getenv("LIVEFOLLOW_STORE_PATH"); path != "" {
		config.Store.Path = path
	}
	overrideDuration("LIVEFOLLOW_STORE_TIMEOUT", &config.Store.Timeout)

	overrideDuration("LIVEFOLLOW_HEARTBEAT_INTERVAL", &config.Timing.HeartbeatInterval)
	overrideDuration("LIVEFOLLOW_PRESENCE_INTERVAL", &config.Timing.PresenceInterval)
	overrideDuration("LIVEFOLLOW_RECONCILE_INTERVAL", &config.Timing.ReconcileInterval)
	overrideDuration("LIVEFOLLOW_PRUNE_INTERVAL", &config.Timing.PruneInterval)
	overrideDuration("LIVEFOLLOW_SCROLL_DEBOUNCE", &config.Timing.ScrollDebounce)
	overrideDuration("LIVEFOLLOW_INACTIVE_THRESHOLD", &config.Timing.InactiveThreshold)
	overrideDuration("LIVEFOLLOW_NOTICE_TTL", &config.Timing.NoticeTTL)
	overrideDuration("LIVEFOLLOW_RETENTION", &config.Timing.Retention)

	if host := os.Getenv("LIVEFOLLOW_PANEL_HOST"); host != "" {
		config.Panel.Host = host
	}
	if port := os.Getenv("LIVEFOLLOW_PANEL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Panel.Port = p
		}
	}
	overrideDuration("LIVEFOLLOW_PANEL_WRITE_TIMEOUT", &config.Panel.WriteTimeout)
	if size := os.Getenv("LIVEFOLLOW_PANEL_BUFFER_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			config.Panel.BufferSize = n
		}
	}

	return config
}

func overrideDuration(key string, target *time.Duration) {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			*target = d
		}
	}
}

// configFile is the JSON form: durations are strings ("3s", "50ms") so the
// file stays human-editable.
type configFile struct {
	Store  *storeConfigFile  `json:"store"`
	Timing *timingConfigFile `json:"timing"`
	Panel  *panelConfigFile  `json:"panel"`
}

type storeConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type timingConfigFile struct {
	HeartbeatInterval string `json:"heartbeat_interval"`
	PresenceInterval  string `json:"presence_interval"`
	ReconcileInterval string `json:"reconcile_interval"`
	PruneInterval     string `json:"prune_interval"`
	ScrollDebounce    string `json:"scroll_debounce"`
	InactiveThreshold string `json:"inactive_threshold"`
	NoticeTTL         string `json:"notice_ttl"`
	Retention         string `json:"retention"`
}

type panelConfigFile struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

// LoadFromFile reads a JSON configuration file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if file.Store != nil {
		if file.Store.Path != "" {
			config.Store.Path = file.Store.Path
		}
		applyDuration(file.Store.Timeout, &config.Store.Timeout)
	}

	if file.Timing != nil {
		applyDuration(file.Timing.HeartbeatInterval, &config.Timing.HeartbeatInterval)
		applyDuration(file.Timing.PresenceInterval, &config.Timing.PresenceInterval)
		applyDuration(file.Timing.ReconcileInterval, &config.Timing.ReconcileInterval)
		applyDuration(file.Timing.PruneInterval, &config.Timing.PruneInterval)
		applyDuration(file.Timing.ScrollDebounce, &config.Timing.ScrollDebounce)
		applyDuration(file.Timing.InactiveThreshold, &config.Timing.InactiveThreshold)
		applyDuration(file.Timing.NoticeTTL, &config.Timing.NoticeTTL)
		applyDuration(file.Timing.Retention, &config.Timing.Retention)
	}

	if file.Panel != nil {
		if file.Panel.Host != "" {
			config.Panel.Host = file.Panel.Host
		}
		if file.Panel.Port > 0 {
			config.Panel.Port = file.Panel.Port
		}
		applyDuration(file.Panel.WriteTimeout, &config.Panel.WriteTimeout)
		if file.Panel.BufferSize > 0 {
			config.Panel.BufferSize = file.Panel.BufferSize
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

func applyDuration(raw string, target *time.Duration) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*target = d
	}
}

// LoadWithPrecedence resolves configuration as file > environment > defaults.
// A missing or broken file falls back silently; environment and defaults
// always produce a working configuration.
func LoadWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
