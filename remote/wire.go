// ABOUTME: Wire format for the remote store's websocket change feed
// ABOUTME: JSON message envelope with a type tag and raw payload
package remote

import (
	"encoding/json"
	"time"

	"github.com/harperreed/orgsync/models"
)

// MessageType tags a websocket frame.
type MessageType string

const (
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypeDoc         MessageType = "doc"
	TypeCollection  MessageType = "collection"
	TypeError       MessageType = "error"
	TypePing        MessageType = "ping"
	TypePong        MessageType = "pong"
)

// Message is the websocket frame envelope. Path identifies the document or
// collection prefix the frame refers to.
type Message struct {
	Type      MessageType     `json:"type"`
	Path      string          `json:"path,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload asks the server to stream changes for a path. Collection
// subscriptions watch every document under the path prefix.
type SubscribePayload struct {
	Path       string `json:"path"`
	Collection bool   `json:"collection,omitempty"`
	ClientID   string `json:"client_id"`
}

// DocPayload carries one document snapshot.
type DocPayload struct {
	Path     string          `json:"path"`
	Envelope models.Envelope `json:"envelope"`
}

// CollectionPayload carries a full collection snapshot.
type CollectionPayload struct {
	Prefix string `json:"prefix"`
	Docs   []Doc  `json:"docs"`
}

// ErrorPayload reports a subscription delivery error.
type ErrorPayload struct {
	Path  string `json:"path,omitempty"`
	Error string `json:"error"`
}

// NewMessage builds a frame with a marshaled payload.
func NewMessage(msgType MessageType, path string, payload interface{}) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Message{
		Type:      msgType,
		Path:      path,
		Timestamp: time.Now(),
		Payload:   raw,
	}, nil
}

// UnmarshalPayload decodes the frame payload into v.
func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
