// ABOUTME: Daemon CLI command running the sync engine in the foreground
// ABOUTME: Streams engine events to the log until interrupted
package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/orgsync/models"
	"github.com/harperreed/orgsync/sync"
)

// DaemonCommand runs the engine in the foreground, printing events, until
// SIGINT or SIGTERM.
func DaemonCommand(engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	quiet := fs.Bool("quiet", false, "Suppress per-event output")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*quiet {
		cancel := engine.Subscribe(printEvent)
		defer cancel()
	}

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync engine: %w", err)
	}
	defer engine.Close()

	fmt.Printf("✓ Sync daemon running (org %s). Press Ctrl+C to stop.\n", engine.Org())
	<-ctx.Done()

	fmt.Println("\nShutting down...")
	return nil
}

func printEvent(ev models.Event) {
	switch e := ev.(type) {
	case models.DataUpdated:
		log.Printf("event: %s updated (%s, org %s)", e.Type, e.Source, e.Org)
	case models.OrgChanged:
		log.Printf("event: organization changed to %s", e.Org)
	case models.DataLoaded:
		log.Printf("event: data loaded for %s", e.Org)
	case models.QueueStatus:
		log.Printf("event: %d items pending", e.Pending)
	case models.OnlineChanged:
		if e.Online {
			log.Printf("event: online")
		} else {
			log.Printf("event: offline")
		}
	}
}
