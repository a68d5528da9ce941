// ABOUTME: Organization CLI commands for showing and switching the tenant
// ABOUTME: Switching tears down subscriptions and reloads under the new org
package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/harperreed/orgsync/sync"
)

// OrgCommand shows or switches the selected organization.
func OrgCommand(engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("org", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Printf("Current organization: %s\n", engine.Org())
		return nil
	}

	org := fs.Arg(0)
	if org == "" {
		return fmt.Errorf("organization name cannot be empty")
	}
	if org == engine.Org() {
		fmt.Printf("Already using organization %s\n", org)
		return nil
	}

	if err := engine.SetOrganization(context.Background(), org); err != nil {
		return fmt.Errorf("failed to switch organization: %w", err)
	}

	fmt.Printf("✓ Switched to organization %s\n", org)
	return nil
}
