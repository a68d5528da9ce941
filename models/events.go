// ABOUTME: Typed event variants emitted by the sync engine
// ABOUTME: One struct per event kind, each carrying its own payload
package models

import "encoding/json"

// Event is the closed set of notifications emitted by the sync engine.
// Consumers type-switch on the concrete variant.
type Event interface {
	isEvent()
}

// Update sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// DataUpdated reports that a collection changed, either from a local save or
// an inbound remote update.
type DataUpdated struct {
	Type      DataType        `json:"type"`
	Data      json.RawMessage `json:"data"`
	Source    string          `json:"source"`
	Timestamp int64           `json:"timestamp"`
	Org       string          `json:"org"`
}

// OrgChanged reports that the active organization switched.
type OrgChanged struct {
	Org string `json:"organizationId"`
}

// DataLoaded reports completion of an initial bulk load from the remote store.
type DataLoaded struct {
	Org string `json:"organizationId"`
}

// QueueStatus reports the number of pending sync queue items.
type QueueStatus struct {
	Pending int `json:"pending"`
}

// OnlineChanged reports a confirmed connectivity transition.
type OnlineChanged struct {
	Online bool `json:"online"`
}

func (DataUpdated) isEvent()   {}
func (OrgChanged) isEvent()    {}
func (DataLoaded) isEvent()    {}
func (QueueStatus) isEvent()   {}
func (OnlineChanged) isEvent() {}
