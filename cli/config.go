// ABOUTME: Config CLI command for device initialization and server settings
// ABOUTME: Generates the device ID on first run and persists settings to XDG paths
package cli

import (
	"flag"
	"fmt"

	"github.com/harperreed/orgsync/sync"
)

// InitCommand initializes device configuration.
func InitCommand(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	server := fs.String("server", "", "Remote sync server URL (empty for local-only)")
	tokenFile := fs.String("token-file", "", "Path to the JWT written by the login flow")
	realtime := fs.Bool("realtime", true, "Enable real-time subscriptions")
	_ = fs.Parse(args)

	cfg, err := sync.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *server != "" {
		cfg.Server = *server
	}
	if *tokenFile != "" {
		cfg.TokenFile = *tokenFile
	}
	cfg.RealtimeEnabled = *realtime

	hadDevice := cfg.DeviceID != ""
	if err := sync.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if hadDevice {
		fmt.Printf("✓ Device already initialized: %s\n", cfg.DeviceID)
	} else {
		fmt.Printf("✓ Generated new device ID: %s\n", cfg.DeviceID)
	}
	fmt.Printf("✓ Configuration saved to %s\n", sync.ConfigPath())
	if cfg.Server == "" {
		fmt.Println("\nNo server configured - running local-only.")
		fmt.Println("Set one with 'orgsync init --server https://...' to enable sync.")
	}
	return nil
}
