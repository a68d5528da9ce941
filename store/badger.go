// ABOUTME: Badger-backed implementation of the local KV primitive
// ABOUTME: Synchronous writes so queued state survives process crashes
package store

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	badger "github.com/dgraph-io/badger/v3"
)

// Badger is a disk-backed KV store.
type Badger struct {
	db *badger.DB
}

// DefaultDataDir returns the XDG-compliant directory for local sync data.
func DefaultDataDir(appName string) string {
	return filepath.Join(xdg.DataHome, appName, "local")
}

// OpenBadger opens (or creates) a badger store at dir.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithSyncWrites(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return &Badger{db: db}, nil
}

// Get returns the stored value and whether the key was present.
func (b *Badger) Get(key string) ([]byte, bool) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores a value.
func (b *Badger) Set(key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		if errors.Is(err, badger.ErrTxnTooBig) {
			return ErrCapacity
		}
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (b *Badger) Delete(key string) {
	_ = b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close closes the underlying database.
func (b *Badger) Close() error {
	return b.db.Close()
}
