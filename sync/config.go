// ABOUTME: Sync engine configuration stored at XDG paths with env overrides
// ABOUTME: Handles server settings, identity token location, and device ID generation
package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/oklog/ulid/v2"
)

// AppName namespaces config and data directories.
const AppName = "orgsync"

// Config stores remote server settings and sync tuning knobs.
type Config struct {
	// Server is the remote document store base URL. Empty disables the
	// remote entirely (local-only operation).
	Server string `json:"server,omitempty"`

	// TokenFile is the path to the JWT written by the external login flow.
	TokenFile string `json:"token_file,omitempty"`

	// DeviceID identifies this device in write envelopes.
	DeviceID string `json:"device_id"`

	// DataDir overrides the local store location.
	DataDir string `json:"data_dir,omitempty"`

	// RealtimeEnabled controls subscription setup.
	RealtimeEnabled bool `json:"realtime_enabled"`

	QueueMax        int           `json:"queue_max,omitempty"`
	MaxAttempts     int           `json:"max_attempts,omitempty"`
	DrainBatch      int           `json:"drain_batch,omitempty"`
	DrainInterval   time.Duration `json:"drain_interval,omitempty"`
	OnlineDebounce  time.Duration `json:"online_debounce,omitempty"`
	OfflineDebounce time.Duration `json:"offline_debounce,omitempty"`
	RetryDelay      time.Duration `json:"retry_delay,omitempty"`
}

// DefaultConfig returns the standard settings.
func DefaultConfig() *Config {
	return &Config{
		RealtimeEnabled: true,
		QueueMax:        100,
		MaxAttempts:     5,
		DrainBatch:      5,
		DrainInterval:   10 * time.Second,
		OnlineDebounce:  time.Second,
		OfflineDebounce: 500 * time.Millisecond,
		RetryDelay:      5 * time.Second,
	}
}

// ConfigDir returns the XDG-compliant configuration directory.
func ConfigDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// ConfigPath returns the path of the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// LoadConfig loads configuration from the XDG data directory, returning
// defaults when no file exists. Environment variables override file values:
// - ORGSYNC_SERVER
// - ORGSYNC_TOKEN_FILE
// - ORGSYNC_DEVICE_ID
// - ORGSYNC_DATA_DIR
// - ORGSYNC_REALTIME.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if server := os.Getenv("ORGSYNC_SERVER"); server != "" {
		cfg.Server = server
	}
	if tokenFile := os.Getenv("ORGSYNC_TOKEN_FILE"); tokenFile != "" {
		cfg.TokenFile = tokenFile
	}
	if deviceID := os.Getenv("ORGSYNC_DEVICE_ID"); deviceID != "" {
		cfg.DeviceID = deviceID
	}
	if dataDir := os.Getenv("ORGSYNC_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if realtime := os.Getenv("ORGSYNC_REALTIME"); realtime != "" {
		cfg.RealtimeEnabled = realtime == "true" || realtime == "1"
	}
}

// SaveConfig writes configuration to the XDG data directory, generating a
// device ID on first save.
func SaveConfig(cfg *Config) error {
	if cfg.DeviceID == "" {
		cfg.DeviceID = ulid.Make().String()
	}

	if err := os.MkdirAll(ConfigDir(), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
