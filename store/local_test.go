// ABOUTME: Tests for the typed local store adapter and the in-memory KV
// ABOUTME: Covers collection round-trips, corrupt state, queue and org persistence
package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/orgsync/models"
)

func TestWriteAndReadCollection(t *testing.T) {
	local := NewLocal(NewMem())

	payload := json.RawMessage(`["alice","bob"]`)
	require.NoError(t, local.WriteCollection(models.AttendanceNames, payload, 1234))

	got, ok := local.ReadCollection(models.AttendanceNames)
	require.True(t, ok)
	assert.JSONEq(t, string(payload), string(got))
	assert.Equal(t, int64(1234), local.Timestamp(models.AttendanceNames))
}

func TestReadCollectionAbsent(t *testing.T) {
	local := NewLocal(NewMem())

	_, ok := local.ReadCollection(models.ReportTitles)
	assert.False(t, ok)
	assert.Equal(t, int64(0), local.Timestamp(models.ReportTitles))
}

func TestCorruptCollectionReadsAsAbsent(t *testing.T) {
	kv := NewMem()
	require.NoError(t, kv.Set(string(models.AttendanceInfo), []byte(`{not json`)))

	local := NewLocal(kv)
	_, ok := local.ReadCollection(models.AttendanceInfo)
	assert.False(t, ok, "malformed stored value should read as absent")
}

func TestCorruptTimestampReadsAsZero(t *testing.T) {
	kv := NewMem()
	require.NoError(t, kv.Set("attendanceDate_timestamp", []byte("not-a-number")))

	local := NewLocal(kv)
	assert.Equal(t, int64(0), local.Timestamp(models.AttendanceDate))
}

func TestSignaturesRoundTrip(t *testing.T) {
	local := NewLocal(NewMem())

	set := models.SignatureSet{
		"alice": {Name: "alice", Image: "img-a", UpdatedAt: 10},
	}
	require.NoError(t, local.WriteSignatures(set, 10))

	got := local.ReadSignatures()
	require.Len(t, got, 1)
	assert.Equal(t, "img-a", got["alice"].Image)
}

func TestCorruptSignaturesReadAsEmpty(t *testing.T) {
	kv := NewMem()
	require.NoError(t, kv.Set(string(models.Signatures), []byte(`[1,2,3]`)))

	local := NewLocal(kv)
	assert.Empty(t, local.ReadSignatures(), "wrong-shape signature state reads as empty")
}

func TestQueueRoundTrip(t *testing.T) {
	local := NewLocal(NewMem())

	items := []models.QueueItem{
		{ID: "a", DataType: models.AttendanceNames, Data: json.RawMessage(`[]`), EnqueuedAt: 1, Org: "AMI"},
		{ID: "b", DataType: models.ReportTitles, Data: json.RawMessage(`[]`), EnqueuedAt: 2, Org: "AMI"},
	}
	require.NoError(t, local.WriteQueue(items))

	got := local.Queue()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestCorruptQueueReadsAsEmpty(t *testing.T) {
	kv := NewMem()
	require.NoError(t, kv.Set(KeyQueue, []byte(`{oops`)))

	local := NewLocal(kv)
	assert.Empty(t, local.Queue())
}

func TestOrgDefaultsAndPersists(t *testing.T) {
	local := NewLocal(NewMem())

	assert.Equal(t, DefaultOrg, local.Org(), "unset org falls back to default")

	require.NoError(t, local.SetOrg("Bravo"))
	assert.Equal(t, "Bravo", local.Org())
}

func TestMemCapacity(t *testing.T) {
	kv := NewMemWithCapacity(10)

	require.NoError(t, kv.Set("a", []byte("12345")))
	require.NoError(t, kv.Set("b", []byte("12345")))

	err := kv.Set("c", []byte("x"))
	assert.ErrorIs(t, err, ErrCapacity, "write over the byte bound should fail")

	// Overwriting an existing key within bounds still works
	require.NoError(t, kv.Set("a", []byte("1")))
}
