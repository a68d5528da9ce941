// ABOUTME: Core data model for organization-scoped record sync
// ABOUTME: Defines data types, remote document envelope, queue items, and save results
package models

import (
	"encoding/json"
	"time"
)

// DataType identifies one of the fixed record collections.
type DataType string

const (
	AttendanceNames DataType = "attendanceNames"
	ReportTitles    DataType = "reportTitles"
	AttendanceInfo  DataType = "attendanceInfo"
	AttendanceDate  DataType = "attendanceDate"
	Signatures      DataType = "signatures"
)

// CollectionTypes returns the document-backed data types, in sync order.
// Signatures are excluded; they live as one remote document per name.
func CollectionTypes() []DataType {
	return []DataType{AttendanceNames, ReportTitles, AttendanceInfo, AttendanceDate}
}

// AllTypes returns every data type including signatures.
func AllTypes() []DataType {
	return append(CollectionTypes(), Signatures)
}

// Valid reports whether dt is a known data type.
func (dt DataType) Valid() bool {
	switch dt {
	case AttendanceNames, ReportTitles, AttendanceInfo, AttendanceDate, Signatures:
		return true
	}
	return false
}

// Envelope wraps a collection payload with authorship and timestamp metadata.
// UpdatedAt is assigned by the remote store and is authoritative for ordering;
// ClientTimestamp is advisory and only consulted before the server commit.
type Envelope struct {
	Data              json.RawMessage `json:"data,omitempty"`
	UpdatedAt         time.Time       `json:"updatedAt,omitempty"`
	UpdatedBy         string          `json:"updatedBy,omitempty"`
	ClientTimestamp   int64           `json:"clientTimestamp,omitempty"`
	Device            string          `json:"device,omitempty"`
	SyncedFromQueue   bool            `json:"syncedFromQueue,omitempty"`
	OriginalTimestamp int64           `json:"originalTimestamp,omitempty"`
}

// Timestamp returns the envelope's ordering timestamp in unix milliseconds,
// falling back to the client timestamp when the server has not committed one.
func (e Envelope) Timestamp() int64 {
	if !e.UpdatedAt.IsZero() {
		return e.UpdatedAt.UnixMilli()
	}
	return e.ClientTimestamp
}

// Signature is one signature image entry, keyed by the signer's name.
type Signature struct {
	Name      string `json:"name"`
	Image     string `json:"image"`
	Note      string `json:"note,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// SignatureSet maps signer name to signature entry.
type SignatureSet map[string]Signature

// Merge returns a copy of s with entries from remote shallow-merged over it.
// Remote entries win on key collision.
func (s SignatureSet) Merge(remote SignatureSet) SignatureSet {
	merged := make(SignatureSet, len(s)+len(remote))
	for name, sig := range s {
		merged[name] = sig
	}
	for name, sig := range remote {
		merged[name] = sig
	}
	return merged
}

// QueueItem is one pending write awaiting remote delivery.
type QueueItem struct {
	ID         string          `json:"id"`
	DataType   DataType        `json:"dataType"`
	Data       json.RawMessage `json:"data"`
	EnqueuedAt int64           `json:"enqueuedAt"`
	Org        string          `json:"org"`
	Attempts   int             `json:"attempts"`
}

// SaveReason explains why a save stayed local-only.
type SaveReason string

const (
	ReasonNoUser   SaveReason = "no-user"
	ReasonOffline  SaveReason = "offline"
	ReasonNoRemote SaveReason = "no-remote"
)

// SaveResult is the structured outcome of a save operation. Remote failures
// are reported here, never as panics or swallowed errors.
type SaveResult struct {
	Success bool       `json:"success"`
	Synced  bool       `json:"synced"`
	Queued  bool       `json:"queued,omitempty"`
	Reason  SaveReason `json:"reason,omitempty"`
	Err     string     `json:"error,omitempty"`
}
