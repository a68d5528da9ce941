// ABOUTME: Tests for the realtime subscription manager
// ABOUTME: Covers self-echo suppression, remote applies, retries, and teardown
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/orgsync/identity"
	"github.com/harperreed/orgsync/models"
	"github.com/harperreed/orgsync/notify"
	"github.com/harperreed/orgsync/remote"
	"github.com/harperreed/orgsync/sched"
	"github.com/harperreed/orgsync/store"
)

type realtimeFixture struct {
	mgr      *Manager
	remote   *remote.Mem
	local    *store.Local
	identity *identity.Static
	sched    *sched.Manual
	notifier *notify.Capture
	org      string
	online   bool
	events   []models.Event
}

func newRealtimeFixture(t *testing.T) *realtimeFixture {
	t.Helper()
	f := &realtimeFixture{
		remote:   remote.NewMem(),
		local:    store.NewLocal(store.NewMem()),
		identity: identity.NewStatic(identity.User{ID: "me"}),
		sched:    sched.NewManual(),
		notifier: &notify.Capture{},
		org:      "AMI",
		online:   true,
	}
	f.remote.SetClock(f.sched.Now)
	f.mgr = New(Deps{
		Remote:   f.remote,
		Local:    f.local,
		Identity: f.identity,
		Sched:    f.sched,
		Notifier: f.notifier,
		Org:      func() string { return f.org },
		Online:   func() bool { return f.online },
		Emit:     func(ev models.Event) { f.events = append(f.events, ev) },
	}, true)
	return f
}

func (f *realtimeFixture) dataUpdates() []models.DataUpdated {
	var out []models.DataUpdated
	for _, ev := range f.events {
		if du, ok := ev.(models.DataUpdated); ok {
			out = append(out, du)
		}
	}
	return out
}

func TestStartOpensAllSubscriptions(t *testing.T) {
	f := newRealtimeFixture(t)
	f.mgr.Start(context.Background())

	types := f.mgr.ActiveTypes()
	assert.Equal(t, []string{
		"attendanceDate", "attendanceInfo", "attendanceNames",
		"reportTitles", "signatures",
	}, types)

	_, ok := f.remote.Doc(remote.OrgPath("AMI"))
	assert.True(t, ok, "org root document created")
}

func TestStartSkipsWhenOffline(t *testing.T) {
	f := newRealtimeFixture(t)
	f.online = false

	f.mgr.Start(context.Background())
	assert.Empty(t, f.mgr.ActiveTypes())
}

func TestStartSkipsWhenDisabled(t *testing.T) {
	f := newRealtimeFixture(t)
	f.mgr = New(f.mgr.deps, false)

	f.mgr.Start(context.Background())
	assert.Empty(t, f.mgr.ActiveTypes())
}

func TestStartIsIdempotent(t *testing.T) {
	f := newRealtimeFixture(t)
	f.mgr.Start(context.Background())
	f.mgr.Start(context.Background())

	path := remote.DataPath("AMI", models.AttendanceNames)
	assert.Equal(t, 1, f.remote.SubCount(path), "at most one subscription per type and org")
}

func TestRemoteUpdateAppliesLocally(t *testing.T) {
	f := newRealtimeFixture(t)
	f.mgr.Start(context.Background())

	payload := json.RawMessage(`["alice","bob"]`)
	err := f.remote.Set(context.Background(), remote.DataPath("AMI", models.AttendanceNames),
		models.Envelope{Data: payload, UpdatedBy: "someone-else"}, true)
	require.NoError(t, err)

	stored, ok := f.local.ReadCollection(models.AttendanceNames)
	require.True(t, ok)
	assert.JSONEq(t, string(payload), string(stored))

	updates := f.dataUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, models.AttendanceNames, updates[0].Type)
	assert.Equal(t, models.SourceRemote, updates[0].Source)

	last, ok := f.notifier.Last()
	require.True(t, ok)
	assert.Equal(t, "2 names updated from another device", last.Message)
}

func TestSelfEchoSuppressed(t *testing.T) {
	f := newRealtimeFixture(t)
	f.mgr.Start(context.Background())

	err := f.remote.Set(context.Background(), remote.DataPath("AMI", models.ReportTitles),
		models.Envelope{Data: json.RawMessage(`["mine"]`), UpdatedBy: "me"}, true)
	require.NoError(t, err)

	assert.Empty(t, f.dataUpdates(), "own writes echoed back are ignored")
	_, ok := f.local.ReadCollection(models.ReportTitles)
	assert.False(t, ok, "self-echo is not re-applied locally")
}

func TestSignatureUpdateMergesOverLocal(t *testing.T) {
	f := newRealtimeFixture(t)
	require.NoError(t, f.local.WriteSignatures(models.SignatureSet{
		"alice": {Name: "alice", Image: "local-a"},
	}, 1))

	f.mgr.Start(context.Background())

	sig := models.Signature{Name: "bob", Image: "remote-b"}
	raw, err := json.Marshal(sig)
	require.NoError(t, err)
	err = f.remote.Set(context.Background(), remote.SignaturePath("AMI", "bob"),
		models.Envelope{Data: raw, UpdatedBy: "someone-else"}, true)
	require.NoError(t, err)

	set := f.local.ReadSignatures()
	require.Len(t, set, 2, "remote signature merged over local set")
	assert.Equal(t, "local-a", set["alice"].Image)
	assert.Equal(t, "remote-b", set["bob"].Image)

	last, ok := f.notifier.Last()
	require.True(t, ok)
	assert.Equal(t, "1 signatures updated from another device", last.Message)
}

func TestListenerErrorRetriesAfterDelay(t *testing.T) {
	f := newRealtimeFixture(t)
	f.mgr.Start(context.Background())

	path := remote.DataPath("AMI", models.AttendanceNames)
	f.remote.FailSub(path, errors.New("stream broke"))
	assert.Equal(t, 0, f.remote.SubCount(path), "broken subscription dropped")

	f.sched.Advance(4 * time.Second)
	assert.Equal(t, 0, f.remote.SubCount(path), "retry waits the full delay")

	f.sched.Advance(time.Second)
	assert.Equal(t, 1, f.remote.SubCount(path), "subscription re-established")
}

func TestRetryKeepsTrying(t *testing.T) {
	f := newRealtimeFixture(t)
	f.mgr.Start(context.Background())

	path := remote.DataPath("AMI", models.AttendanceNames)
	for i := 0; i < 10; i++ {
		f.remote.FailSub(path, errors.New("still broken"))
		f.sched.Advance(5 * time.Second)
	}
	assert.Equal(t, 1, f.remote.SubCount(path), "retries continue indefinitely")
}

func TestStopInvalidatesPendingRetries(t *testing.T) {
	f := newRealtimeFixture(t)
	f.mgr.Start(context.Background())

	path := remote.DataPath("AMI", models.AttendanceNames)
	f.remote.FailSub(path, errors.New("stream broke"))
	f.mgr.Stop()

	f.sched.Advance(10 * time.Second)
	assert.Equal(t, 0, f.remote.SubCount(path), "stale retry must not resubscribe")
	assert.Empty(t, f.mgr.ActiveTypes())
}

func TestRetrySkippedAfterOrgSwitch(t *testing.T) {
	f := newRealtimeFixture(t)
	f.mgr.Start(context.Background())

	path := remote.DataPath("AMI", models.AttendanceNames)
	f.remote.FailSub(path, errors.New("stream broke"))

	// Org changes while the retry is pending, without a Stop
	f.org = "Bravo"
	f.sched.Advance(5 * time.Second)

	assert.Equal(t, 0, f.remote.SubCount(path), "retry under the old org is abandoned")
}

func TestStopRemovesAllSubscriptions(t *testing.T) {
	f := newRealtimeFixture(t)
	f.mgr.Start(context.Background())
	f.mgr.Stop()

	assert.Empty(t, f.mgr.ActiveTypes())
	for _, dt := range models.CollectionTypes() {
		assert.Equal(t, 0, f.remote.SubCount(remote.DataPath("AMI", dt)))
	}
	assert.Equal(t, 0, f.remote.SubCount(remote.SignaturesPrefix("AMI")))
}
