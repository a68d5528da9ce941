// ABOUTME: Tests for sync configuration persistence and overrides
// ABOUTME: Covers XDG paths, defaults, env overrides, and device ID generation
package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempConfigDir(t *testing.T) {
	t.Helper()
	origHome := xdg.DataHome
	xdg.DataHome = t.TempDir()
	t.Cleanup(func() { xdg.DataHome = origHome })
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	assert.Equal(t, filepath.Join(xdg.DataHome, AppName), filepath.Dir(path))
	assert.Equal(t, "config.json", filepath.Base(path))
}

func TestLoadConfigDefaults(t *testing.T) {
	useTempConfigDir(t)

	cfg, err := LoadConfig()
	require.NoError(t, err, "missing config file should fall back to defaults")
	require.NotNil(t, cfg)

	assert.True(t, cfg.RealtimeEnabled)
	assert.Equal(t, 100, cfg.QueueMax)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 5, cfg.DrainBatch)
	assert.Equal(t, 10*time.Second, cfg.DrainInterval)
	assert.Equal(t, time.Second, cfg.OnlineDebounce)
	assert.Equal(t, 500*time.Millisecond, cfg.OfflineDebounce)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Empty(t, cfg.Server)
	assert.Empty(t, cfg.DeviceID)
}

func TestSaveAndLoadConfig(t *testing.T) {
	useTempConfigDir(t)

	cfg := DefaultConfig()
	cfg.Server = "https://sync.example.com"
	cfg.TokenFile = "/tmp/token"
	require.NoError(t, SaveConfig(cfg))

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://sync.example.com", loaded.Server)
	assert.Equal(t, "/tmp/token", loaded.TokenFile)
	assert.Equal(t, cfg.DeviceID, loaded.DeviceID)
}

func TestSaveConfigGeneratesDeviceID(t *testing.T) {
	useTempConfigDir(t)

	cfg := DefaultConfig()
	require.Empty(t, cfg.DeviceID)
	require.NoError(t, SaveConfig(cfg))

	assert.NotEmpty(t, cfg.DeviceID)
	_, err := ulid.Parse(cfg.DeviceID)
	assert.NoError(t, err, "device ID should be a valid ULID")

	// A second save keeps the existing ID
	id := cfg.DeviceID
	require.NoError(t, SaveConfig(cfg))
	assert.Equal(t, id, cfg.DeviceID)
}

func TestEnvOverrides(t *testing.T) {
	useTempConfigDir(t)

	t.Setenv("ORGSYNC_SERVER", "https://env.example.com")
	t.Setenv("ORGSYNC_DEVICE_ID", "env-device")
	t.Setenv("ORGSYNC_REALTIME", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Server)
	assert.Equal(t, "env-device", cfg.DeviceID)
	assert.False(t, cfg.RealtimeEnabled)
}

func TestEnvOverridesBeatFileValues(t *testing.T) {
	useTempConfigDir(t)

	cfg := DefaultConfig()
	cfg.Server = "https://file.example.com"
	require.NoError(t, SaveConfig(cfg))

	t.Setenv("ORGSYNC_SERVER", "https://env.example.com")

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", loaded.Server)
}
