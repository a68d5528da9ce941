// ABOUTME: Tests for core data model types and envelope timestamp semantics
// ABOUTME: Covers data type validity, signature merging, and ordering fallbacks
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDataTypeValid(t *testing.T) {
	for _, dt := range AllTypes() {
		assert.True(t, dt.Valid(), "%s should be valid", dt)
	}
	assert.False(t, DataType("bogus").Valid(), "unknown type should be invalid")
	assert.False(t, DataType("").Valid(), "empty type should be invalid")
}

func TestCollectionTypesExcludeSignatures(t *testing.T) {
	for _, dt := range CollectionTypes() {
		assert.NotEqual(t, Signatures, dt, "signatures are not a document collection")
	}
	assert.Len(t, CollectionTypes(), 4)
	assert.Len(t, AllTypes(), 5)
}

func TestEnvelopeTimestamp(t *testing.T) {
	server := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	env := Envelope{UpdatedAt: server, ClientTimestamp: 42}
	assert.Equal(t, server.UnixMilli(), env.Timestamp(), "server timestamp wins when present")

	env = Envelope{ClientTimestamp: 42}
	assert.Equal(t, int64(42), env.Timestamp(), "falls back to client timestamp")

	env = Envelope{}
	assert.Equal(t, int64(0), env.Timestamp())
}

func TestSignatureSetMerge(t *testing.T) {
	local := SignatureSet{
		"alice": {Name: "alice", Image: "local-a", UpdatedAt: 1},
		"bob":   {Name: "bob", Image: "local-b", UpdatedAt: 2},
	}
	remote := SignatureSet{
		"bob":   {Name: "bob", Image: "remote-b", UpdatedAt: 3},
		"carol": {Name: "carol", Image: "remote-c", UpdatedAt: 4},
	}

	merged := local.Merge(remote)

	assert.Len(t, merged, 3)
	assert.Equal(t, "local-a", merged["alice"].Image, "local-only entry kept")
	assert.Equal(t, "remote-b", merged["bob"].Image, "remote wins on collision")
	assert.Equal(t, "remote-c", merged["carol"].Image, "remote-only entry added")

	// Merge never mutates its receiver
	assert.Equal(t, "local-b", local["bob"].Image)
}

func TestSignatureSetMergeEmpty(t *testing.T) {
	var local SignatureSet
	remote := SignatureSet{"alice": {Name: "alice", Image: "a"}}

	merged := local.Merge(remote)
	assert.Len(t, merged, 1)

	merged = remote.Merge(nil)
	assert.Len(t, merged, 1)
}
