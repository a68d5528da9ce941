// ABOUTME: Remote document store contract and path layout
// ABOUTME: Path-addressable documents with merge writes and change subscriptions
package remote

import (
	"context"

	"github.com/harperreed/orgsync/models"
)

// Doc pairs a document path with its envelope.
type Doc struct {
	Path     string          `json:"path"`
	Envelope models.Envelope `json:"envelope"`
}

// Sub is a live subscription handle. OnError registers a delivery-error
// callback; the subscription manager uses it to schedule reconnects.
type Sub interface {
	Unsubscribe()
	OnError(fn func(error))
}

// Store is the remote document store. Get returns (nil, nil) for an absent
// document. Set with merge=true preserves envelope fields absent from env.
// Watch delivers the current document (if any) and every subsequent change;
// WatchCollection delivers full snapshots of all documents under a prefix.
type Store interface {
	Get(ctx context.Context, path string) (*models.Envelope, error)
	GetCollection(ctx context.Context, prefix string) ([]Doc, error)
	Set(ctx context.Context, path string, env models.Envelope, merge bool) error
	Delete(ctx context.Context, path string) error
	Watch(path string, fn func(models.Envelope)) (Sub, error)
	WatchCollection(prefix string, fn func([]Doc)) (Sub, error)
	EnsureOrg(ctx context.Context, org, createdBy string) error
	Ping(ctx context.Context) error
}

// DataPath returns the document path for an organization's collection.
func DataPath(org string, dt models.DataType) string {
	return "organizations/" + org + "/data/" + string(dt)
}

// SignaturePath returns the document path for one signature.
func SignaturePath(org, name string) string {
	return SignaturesPrefix(org) + name
}

// SignaturesPrefix returns the collection prefix for an organization's
// signatures.
func SignaturesPrefix(org string) string {
	return "organizations/" + org + "/signatures/"
}

// OrgPath returns the organization's root document path.
func OrgPath(org string) string {
	return "organizations/" + org
}
