// ABOUTME: Entry point for the orgsync CLI and sync daemon
// ABOUTME: Wires config, local store, remote client, and identity into the engine
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/harperreed/orgsync/cli"
	"github.com/harperreed/orgsync/identity"
	"github.com/harperreed/orgsync/remote"
	"github.com/harperreed/orgsync/store"
	"github.com/harperreed/orgsync/sync"
)

const version = "0.1.0"

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "Show version and exit")
	dataDir := flag.String("data-dir", "", "Local store path (default: ~/.local/share/orgsync/local)")
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("orgsync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	// init runs before any store or engine exists
	if command == "init" {
		if err := cli.InitCommand(commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	cfg, err := sync.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	dir := cfg.DataDir
	if dir == "" {
		dir = store.DefaultDataDir(sync.AppName)
	}
	kv, err := store.OpenBadger(dir)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer func() { _ = kv.Close() }()

	deps := sync.Deps{Local: kv}

	if cfg.TokenFile != "" {
		deps.Identity = identity.NewTokenFile(cfg.TokenFile)
	} else {
		deps.Identity = identity.NewStatic(identity.User{})
	}

	var client *remote.Client
	if cfg.Server != "" {
		token := ""
		if tf, ok := deps.Identity.(*identity.TokenFile); ok {
			token = tf.Token()
		}
		client = remote.NewClient(remote.ClientConfig{
			Server:   cfg.Server,
			Token:    token,
			DeviceID: cfg.DeviceID,
		})
		deps.Remote = client
	}

	engine := sync.New(cfg, deps)

	// get reads the local store directly; no engine startup needed
	if command == "get" {
		if err := cli.GetCommand(store.NewLocal(kv), commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	// daemon owns the engine lifecycle itself
	if command == "daemon" {
		if err := cli.DaemonCommand(engine, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	if err := engine.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start sync engine: %v", err)
	}
	defer engine.Close()

	switch command {
	case "status":
		err = cli.StatusCommand(engine, commandArgs)
	case "save":
		err = cli.SaveCommand(engine, commandArgs)
	case "signature":
		err = cli.SignatureCommand(engine, commandArgs)
	case "sync":
		err = cli.SyncCommand(engine, commandArgs)
	case "load":
		err = cli.LoadCommand(engine, commandArgs)
	case "queue":
		err = cli.QueueCommand(engine, commandArgs)
	case "org":
		err = cli.OrgCommand(engine, commandArgs)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Println(`orgsync - offline-first organization data sync

Usage:
  orgsync [flags] <command> [args]

Commands:
  init          Initialize device configuration
  status        Show sync engine status
  save          Save a collection (save <type> <json> or --file)
  get           Print the local copy of a collection
  signature     Save a signature (--name, --image, --note)
  sync          Push all local data to the remote store
  load          Pull remote data for the current organization
  queue         List pending queue items (--drain to push now)
  org           Show or switch the organization (org [name])
  daemon        Run the sync engine in the foreground

Flags:
  -version      Show version and exit
  -data-dir     Local store path (default: ~/.local/share/orgsync/local)

Environment:
  ORGSYNC_SERVER, ORGSYNC_TOKEN_FILE, ORGSYNC_DEVICE_ID,
  ORGSYNC_DATA_DIR, ORGSYNC_REALTIME override config file values.`)
}
