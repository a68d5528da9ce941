// ABOUTME: Sync CLI commands for push, pull, queue inspection, and status
// ABOUTME: Drives the engine's bulk operations and reports their outcomes
package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/harperreed/orgsync/sync"
)

// SyncCommand pushes all non-empty local collections to the remote store and
// drains the pending queue.
func SyncCommand(engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	_ = fs.Parse(args)

	fmt.Println("Syncing all local data...")
	if err := engine.SyncAllLocalData(context.Background()); err != nil {
		return err
	}
	fmt.Println("✓ All data synced")
	return nil
}

// LoadCommand pulls every collection for the current organization from the
// remote store, replacing local copies.
func LoadCommand(engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	_ = fs.Parse(args)

	fmt.Printf("Loading data for org %s...\n", engine.Org())
	if err := engine.LoadRemoteData(context.Background()); err != nil {
		return err
	}
	fmt.Println("✓ Remote data loaded")
	return nil
}

// QueueCommand lists pending queue items.
func QueueCommand(engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	drain := fs.Bool("drain", false, "Attempt to drain the queue now")
	_ = fs.Parse(args)

	if *drain {
		engine.Queue().Drain(context.Background())
	}

	items := engine.Queue().Items()
	if len(items) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}

	fmt.Printf("%d pending items:\n", len(items))
	for _, item := range items {
		age := time.Since(time.UnixMilli(item.EnqueuedAt)).Round(time.Second)
		fmt.Printf("  %-20s org=%-10s attempts=%d queued %s ago\n",
			item.DataType, item.Org, item.Attempts, age)
	}
	return nil
}

// StatusCommand prints the engine snapshot.
func StatusCommand(engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	status := engine.Status()

	fmt.Printf("State:          %s\n", status.State)
	fmt.Printf("Online:         %v\n", status.Online)
	fmt.Printf("Organization:   %s\n", status.Org)
	if status.UserID != "" {
		fmt.Printf("User:           %s\n", status.UserID)
	} else {
		fmt.Printf("User:           (not signed in)\n")
	}
	fmt.Printf("Realtime:       %v\n", status.RealtimeEnabled)
	fmt.Printf("Queue length:   %d\n", status.QueueLength)
	if len(status.Subscriptions) > 0 {
		fmt.Printf("Subscriptions:  %v\n", status.Subscriptions)
	} else {
		fmt.Printf("Subscriptions:  (none)\n")
	}
	return nil
}
