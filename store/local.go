// ABOUTME: Typed adapter over the local KV primitive
// ABOUTME: Namespaces collections by data-type key plus a _timestamp companion
package store

import (
	"encoding/json"
	"strconv"

	"github.com/harperreed/orgsync/models"
)

const (
	// KeyQueue holds the persisted sync queue.
	KeyQueue = "syncQueue"

	// KeyOrg holds the selected organization.
	KeyOrg = "selectedOrganization"

	// DefaultOrg is used when no organization has been selected yet.
	DefaultOrg = "AMI"
)

// Local is the typed local store adapter. Each collection lives under its
// data-type key with a "<type>_timestamp" companion entry. Malformed
// persisted values are treated as absent, never propagated.
type Local struct {
	kv KV
}

// NewLocal wraps a KV primitive.
func NewLocal(kv KV) *Local {
	return &Local{kv: kv}
}

// KV exposes the underlying primitive.
func (l *Local) KV() KV {
	return l.kv
}

func timestampKey(dt models.DataType) string {
	return string(dt) + "_timestamp"
}

// ReadCollection returns the stored payload for a data type.
func (l *Local) ReadCollection(dt models.DataType) (json.RawMessage, bool) {
	raw, ok := l.kv.Get(string(dt))
	if !ok || !json.Valid(raw) {
		return nil, false
	}
	return raw, true
}

// WriteCollection stores a payload and its timestamp companion. A capacity
// error from either write is returned so the caller can degrade to
// remote-only delivery.
func (l *Local) WriteCollection(dt models.DataType, data json.RawMessage, ts int64) error {
	if err := l.kv.Set(string(dt), data); err != nil {
		return err
	}
	return l.kv.Set(timestampKey(dt), []byte(strconv.FormatInt(ts, 10)))
}

// Timestamp returns the stored timestamp for a data type, or 0.
func (l *Local) Timestamp(dt models.DataType) int64 {
	raw, ok := l.kv.Get(timestampKey(dt))
	if !ok {
		return 0
	}
	ts, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// ReadSignatures returns the local signature set. Corrupt state reads as
// empty.
func (l *Local) ReadSignatures() models.SignatureSet {
	raw, ok := l.kv.Get(string(models.Signatures))
	if !ok {
		return models.SignatureSet{}
	}
	var set models.SignatureSet
	if err := json.Unmarshal(raw, &set); err != nil || set == nil {
		return models.SignatureSet{}
	}
	return set
}

// WriteSignatures stores the signature set and its timestamp companion.
func (l *Local) WriteSignatures(set models.SignatureSet, ts int64) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return l.WriteCollection(models.Signatures, raw, ts)
}

// Queue loads the persisted sync queue. Corrupt state reads as empty.
func (l *Local) Queue() []models.QueueItem {
	raw, ok := l.kv.Get(KeyQueue)
	if !ok {
		return nil
	}
	var items []models.QueueItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

// WriteQueue persists the full sync queue.
func (l *Local) WriteQueue(items []models.QueueItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return l.kv.Set(KeyQueue, raw)
}

// Org returns the selected organization, defaulting to DefaultOrg.
func (l *Local) Org() string {
	raw, ok := l.kv.Get(KeyOrg)
	if !ok || len(raw) == 0 {
		return DefaultOrg
	}
	return string(raw)
}

// SetOrg persists the selected organization.
func (l *Local) SetOrg(org string) error {
	return l.kv.Set(KeyOrg, []byte(org))
}
