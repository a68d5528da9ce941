// ABOUTME: Data CLI commands for saving and inspecting local collections
// ABOUTME: Handles save, get, and signature operations against the sync engine
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harperreed/orgsync/models"
	"github.com/harperreed/orgsync/store"
	"github.com/harperreed/orgsync/sync"
)

// SaveCommand writes one collection payload through the engine.
func SaveCommand(engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	file := fs.String("file", "", "Read the JSON payload from a file ('-' for stdin)")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("save requires a data type (%s)", typeList())
	}
	dt := models.DataType(fs.Arg(0))
	if !dt.Valid() {
		return fmt.Errorf("unknown data type %q (expected one of %s)", fs.Arg(0), typeList())
	}

	raw, err := readPayload(fs, *file)
	if err != nil {
		return err
	}
	if !json.Valid(raw) {
		return fmt.Errorf("payload is not valid JSON")
	}

	res := engine.SaveData(context.Background(), dt, json.RawMessage(raw))
	printSaveResult(string(dt), res)
	if !res.Success {
		return fmt.Errorf("save failed: %s", res.Err)
	}
	return nil
}

// GetCommand prints the local copy of one collection.
func GetCommand(local *store.Local, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("get requires a data type (%s)", typeList())
	}
	dt := models.DataType(fs.Arg(0))
	if !dt.Valid() {
		return fmt.Errorf("unknown data type %q (expected one of %s)", fs.Arg(0), typeList())
	}

	raw, ok := local.ReadCollection(dt)
	if !ok {
		fmt.Printf("No local data for %s\n", dt)
		return nil
	}

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err == nil {
		fmt.Print(buf.String())
	} else {
		fmt.Println(string(raw))
	}
	fmt.Printf("(last updated %d)\n", local.Timestamp(dt))
	return nil
}

// SignatureCommand stores one signature image.
func SignatureCommand(engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("signature", flag.ExitOnError)
	name := fs.String("name", "", "Signer name (required)")
	image := fs.String("image", "", "Image data or path to a file containing it (required)")
	note := fs.String("note", "", "Optional note")
	_ = fs.Parse(args)

	if *name == "" || *image == "" {
		return fmt.Errorf("signature requires --name and --image")
	}

	data := *image
	if b, err := os.ReadFile(*image); err == nil {
		data = string(b)
	}

	res := engine.SaveSignature(context.Background(), *name, data, *note)
	printSaveResult(fmt.Sprintf("signature for %s", *name), res)
	if !res.Success {
		return fmt.Errorf("save failed: %s", res.Err)
	}
	return nil
}

func readPayload(fs *flag.FlagSet, file string) ([]byte, error) {
	switch {
	case file == "-":
		return io.ReadAll(os.Stdin)
	case file != "":
		return os.ReadFile(file)
	case fs.NArg() > 1:
		return []byte(fs.Arg(1)), nil
	default:
		return nil, fmt.Errorf("no payload: pass inline JSON or --file")
	}
}

func printSaveResult(what string, res models.SaveResult) {
	switch {
	case res.Synced:
		fmt.Printf("✓ Saved %s (synced to remote)\n", what)
	case res.Queued:
		fmt.Printf("✓ Saved %s locally (queued for sync: %s)\n", what, reasonText(res))
	case res.Success:
		fmt.Printf("✓ Saved %s locally (%s)\n", what, reasonText(res))
	default:
		fmt.Printf("✗ Failed to save %s: %s\n", what, res.Err)
	}
}

func reasonText(res models.SaveResult) string {
	switch res.Reason {
	case models.ReasonNoUser:
		return "not signed in"
	case models.ReasonOffline:
		return "offline"
	case models.ReasonNoRemote:
		return "no remote configured"
	default:
		if res.Err != "" {
			return res.Err
		}
		return "local only"
	}
}

func typeList() string {
	types := models.AllTypes()
	names := make([]string, len(types))
	for i, dt := range types {
		names[i] = string(dt)
	}
	return strings.Join(names, ", ")
}
