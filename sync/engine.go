// ABOUTME: Sync orchestrator tying local store, queue, realtime, and network monitor together
// ABOUTME: Write-through saves, bulk sync, organization switching, and status reporting
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"github.com/harperreed/orgsync/identity"
	"github.com/harperreed/orgsync/models"
	"github.com/harperreed/orgsync/netmon"
	"github.com/harperreed/orgsync/notify"
	"github.com/harperreed/orgsync/queue"
	"github.com/harperreed/orgsync/realtime"
	"github.com/harperreed/orgsync/remote"
	"github.com/harperreed/orgsync/sched"
	"github.com/harperreed/orgsync/store"
)

// ErrUnavailable is returned when an operation needs connectivity and an
// authenticated identity but has neither.
var ErrUnavailable = errors.New("sync: offline or not signed in")

// State is the engine lifecycle state.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Deps are the injected collaborators. Remote may be nil for local-only
// operation; Sched, Probe, and Notifier default sensibly when nil.
type Deps struct {
	Local    store.KV
	Remote   remote.Store
	Identity identity.Provider
	Sched    sched.Scheduler
	Probe    netmon.Probe
	Notifier notify.Notifier
}

// Status is a read-only snapshot of the engine.
type Status struct {
	Online          bool     `json:"online"`
	State           string   `json:"state"`
	Org             string   `json:"org"`
	Subscriptions   []string `json:"subscriptions"`
	QueueLength     int      `json:"queueLength"`
	UserID          string   `json:"userId,omitempty"`
	RealtimeEnabled bool     `json:"realtimeEnabled"`
}

// Engine is the sync orchestrator. Saves write through the local store first
// and reach the remote store best-effort, falling back to the durable queue;
// inbound remote changes arrive through the realtime manager and surface as
// events.
type Engine struct {
	cfg      *Config
	local    *store.Local
	remote   remote.Store
	id       identity.Provider
	sched    sched.Scheduler
	notifier notify.Notifier
	mon      *netmon.Monitor
	queue    *queue.Queue
	rt       *realtime.Manager

	mu      stdsync.Mutex
	state   State
	org     string
	subs    map[int]func(models.Event)
	nextSub int
	timers  []sched.Timer
}

// New wires an engine from injected collaborators.
func New(cfg *Config, deps Deps) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Sched == nil {
		deps.Sched = sched.NewReal()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Log{}
	}
	if deps.Probe == nil {
		if deps.Remote != nil {
			deps.Probe = netmon.PingProbe{Ping: deps.Remote.Ping}
		} else {
			deps.Probe = netmon.ProbeFunc(func() bool { return true })
		}
	}

	local := store.NewLocal(deps.Local)

	e := &Engine{
		cfg:      cfg,
		local:    local,
		remote:   deps.Remote,
		id:       deps.Identity,
		sched:    deps.Sched,
		notifier: deps.Notifier,
		org:      local.Org(),
		subs:     make(map[int]func(models.Event)),
	}

	e.mon = netmon.New(deps.Probe, deps.Sched, e.handleOnline, e.handleOffline)
	e.mon.SetDelays(cfg.OnlineDebounce, cfg.OfflineDebounce, 0)

	e.queue = queue.New(local, deps.Remote, deps.Sched, queue.Config{
		Max:         cfg.QueueMax,
		Batch:       cfg.DrainBatch,
		MaxAttempts: cfg.MaxAttempts,
		Pace:        queue.DefaultPace,
		Interval:    cfg.DrainInterval,
	}, queue.Hooks{
		Org:    e.Org,
		Online: e.Online,
		UserID: e.userID,
		Device: cfg.DeviceID,
		OnStatus: func(pending int) {
			e.emit(models.QueueStatus{Pending: pending})
		},
	})

	e.rt = realtime.New(realtime.Deps{
		Remote:   deps.Remote,
		Local:    local,
		Identity: deps.Identity,
		Sched:    deps.Sched,
		Notifier: deps.Notifier,
		Org:      e.Org,
		Online:   e.Online,
		Emit:     e.emit,
	}, cfg.RealtimeEnabled)
	if cfg.RetryDelay > 0 {
		e.rt.SetRetryDelay(cfg.RetryDelay)
	}

	return e
}

// Start loads persisted state, arms the network monitor and drain timer,
// and — when online — starts subscriptions and pulls remote data.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Uninitialized {
		e.mu.Unlock()
		return nil
	}
	e.state = Initializing
	e.mu.Unlock()

	log.Printf("sync: engine starting (org %s)", e.Org())

	e.queue.Load()
	e.mon.Start()
	e.queue.Start(ctx)

	if e.mon.IsOnline() {
		if _, ok := e.id.Current(); ok {
			if err := e.LoadRemoteData(ctx); err != nil {
				log.Printf("sync: initial load failed: %v", err)
			}
		} else {
			log.Printf("sync: using local data only")
		}
		e.afterFunc(2*time.Second, func() {
			e.rt.Start(ctx)
		})
	}

	e.mu.Lock()
	e.state = Ready
	e.mu.Unlock()
	return nil
}

// Close tears down subscriptions, timers, and the network monitor. Local
// store entries persist beyond the engine's lifetime.
func (e *Engine) Close() {
	e.rt.Stop()
	e.queue.Stop()
	e.mon.Stop()

	e.mu.Lock()
	timers := e.timers
	e.timers = nil
	e.state = Uninitialized
	e.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

// Org returns the currently selected organization.
func (e *Engine) Org() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.org
}

// Online reports the confirmed connectivity state.
func (e *Engine) Online() bool {
	return e.mon.IsOnline()
}

// Signal feeds a low-level connectivity report into the debounced monitor.
func (e *Engine) Signal(online bool) {
	e.mon.Signal(online)
}

// Queue exposes the sync queue for inspection.
func (e *Engine) Queue() *queue.Queue {
	return e.queue
}

func (e *Engine) userID() (string, bool) {
	user, ok := e.id.Current()
	return user.ID, ok
}

// SaveData writes a collection payload locally, emits a local update event,
// and pushes to the remote store best-effort. The result reports whether the
// payload synced, queued, or stayed local-only and why. It never panics and
// never loses the local write.
func (e *Engine) SaveData(ctx context.Context, dt models.DataType, payload interface{}) models.SaveResult {
	if !dt.Valid() {
		return models.SaveResult{Err: fmt.Sprintf("unknown data type %q", dt)}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.SaveResult{Err: fmt.Sprintf("failed to encode payload: %v", err)}
	}
	return e.saveRaw(ctx, dt, raw)
}

func (e *Engine) saveRaw(ctx context.Context, dt models.DataType, raw json.RawMessage) models.SaveResult {
	now := e.sched.Now().UnixMilli()
	org := e.Org()

	// Local first: read-your-writes regardless of remote availability. A
	// full local store degrades to remote-only delivery.
	if err := e.local.WriteCollection(dt, raw, now); err != nil {
		if errors.Is(err, store.ErrCapacity) {
			log.Printf("sync: local store full, %s will sync remote-only", dt)
		} else {
			log.Printf("sync: local write failed for %s: %v", dt, err)
		}
	}

	e.emit(models.DataUpdated{
		Type:      dt,
		Data:      raw,
		Source:    models.SourceLocal,
		Timestamp: now,
		Org:       org,
	})

	user, ok := e.id.Current()
	if !ok {
		log.Printf("sync: %s saved locally only (no user)", dt)
		return models.SaveResult{Success: true, Reason: models.ReasonNoUser}
	}
	if !e.mon.IsOnline() {
		log.Printf("sync: %s saved locally only (offline)", dt)
		e.queue.Enqueue(dt, raw)
		return models.SaveResult{Success: true, Queued: true, Reason: models.ReasonOffline}
	}
	if e.remote == nil {
		log.Printf("sync: %s saved locally only (no remote)", dt)
		return models.SaveResult{Success: true, Reason: models.ReasonNoRemote}
	}

	env := models.Envelope{
		Data:            raw,
		UpdatedBy:       user.ID,
		ClientTimestamp: now,
		Device:          e.cfg.DeviceID,
	}

	var err error
	if dt == models.Signatures {
		err = e.setSignatureDocs(ctx, org, raw, env)
	} else {
		err = e.remote.Set(ctx, remote.DataPath(org, dt), env, true)
	}
	if err != nil {
		log.Printf("sync: remote write failed for %s: %v", dt, err)
		e.queue.Enqueue(dt, raw)
		return models.SaveResult{Queued: true, Err: err.Error()}
	}

	log.Printf("sync: %s saved to remote", dt)
	return models.SaveResult{Success: true, Synced: true}
}

// setSignatureDocs fans a full signature set out into per-name documents.
func (e *Engine) setSignatureDocs(ctx context.Context, org string, raw json.RawMessage, base models.Envelope) error {
	var set models.SignatureSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return fmt.Errorf("invalid signature set: %w", err)
	}
	for name, sig := range set {
		data, err := json.Marshal(sig)
		if err != nil {
			return err
		}
		env := base
		env.Data = data
		if err := e.remote.Set(ctx, remote.SignaturePath(org, name), env, true); err != nil {
			return err
		}
	}
	return nil
}

// SaveSignature stores one signature image. The entry merges into the local
// signature set; the remote write targets that signature's own document.
func (e *Engine) SaveSignature(ctx context.Context, name, image, note string) models.SaveResult {
	user, ok := e.id.Current()
	if !ok {
		return models.SaveResult{Reason: models.ReasonNoUser, Err: "no authenticated user"}
	}

	now := e.sched.Now().UnixMilli()
	org := e.Org()

	set := e.local.ReadSignatures()
	sig := models.Signature{Name: name, Image: image, Note: note, UpdatedAt: now}
	set[name] = sig
	if err := e.local.WriteSignatures(set, now); err != nil && !errors.Is(err, store.ErrCapacity) {
		log.Printf("sync: local signature write failed: %v", err)
	}

	merged, err := json.Marshal(set)
	if err == nil {
		e.emit(models.DataUpdated{
			Type:      models.Signatures,
			Data:      merged,
			Source:    models.SourceLocal,
			Timestamp: now,
			Org:       org,
		})
	}

	if !e.mon.IsOnline() || e.remote == nil {
		e.queue.Enqueue(models.Signatures, merged)
		reason := models.ReasonOffline
		if e.mon.IsOnline() {
			reason = models.ReasonNoRemote
		}
		return models.SaveResult{Success: true, Queued: true, Reason: reason}
	}

	data, err := json.Marshal(sig)
	if err != nil {
		return models.SaveResult{Err: err.Error()}
	}
	env := models.Envelope{
		Data:            data,
		UpdatedBy:       user.ID,
		ClientTimestamp: now,
		Device:          e.cfg.DeviceID,
	}
	if err := e.remote.Set(ctx, remote.SignaturePath(org, name), env, true); err != nil {
		log.Printf("sync: signature write failed for %s: %v", name, err)
		e.queue.Enqueue(models.Signatures, merged)
		return models.SaveResult{Success: true, Queued: true, Err: err.Error()}
	}

	log.Printf("sync: signature saved for %s", name)
	return models.SaveResult{Success: true, Synced: true}
}

// SyncAllLocalData pushes every non-empty local collection to the remote
// store, then drains the queue. Requires connectivity and identity.
func (e *Engine) SyncAllLocalData(ctx context.Context) error {
	if _, ok := e.id.Current(); !ok || !e.mon.IsOnline() {
		e.notifier.Notify(notify.Notice{
			Level:   notify.Error,
			Message: "Cannot sync - check connection and login",
		})
		return ErrUnavailable
	}

	log.Printf("sync: pushing all local data")

	failed := 0
	for _, dt := range models.CollectionTypes() {
		raw, ok := e.local.ReadCollection(dt)
		if !ok || emptyJSON(raw) {
			continue
		}
		if res := e.saveRaw(ctx, dt, raw); !res.Success {
			failed++
		}
	}

	e.queue.Drain(ctx)

	if failed > 0 {
		msg := fmt.Sprintf("Sync failed for %d collections", failed)
		e.notifier.Notify(notify.Notice{Level: notify.Error, Message: msg})
		return errors.New(msg)
	}
	e.notifier.Notify(notify.Notice{Level: notify.Success, Message: "All data synced to cloud"})
	return nil
}

// LoadRemoteData pulls every collection for the current organization,
// replacing local copies, and merges the remote signature set over the local
// one. Emits a DataLoaded event when done.
func (e *Engine) LoadRemoteData(ctx context.Context) error {
	if e.remote == nil {
		return ErrUnavailable
	}
	org := e.Org()
	log.Printf("sync: loading data for org %s", org)

	for _, dt := range models.CollectionTypes() {
		env, err := e.remote.Get(ctx, remote.DataPath(org, dt))
		if err != nil {
			log.Printf("sync: could not load %s: %v", dt, err)
			continue
		}
		if env == nil || env.Data == nil {
			continue
		}
		ts := env.Timestamp()
		if err := e.local.WriteCollection(dt, env.Data, ts); err != nil {
			log.Printf("sync: could not store %s: %v", dt, err)
			continue
		}
		e.emit(models.DataUpdated{
			Type:      dt,
			Data:      env.Data,
			Source:    models.SourceRemote,
			Timestamp: ts,
			Org:       org,
		})
	}

	e.loadRemoteSignatures(ctx, org)

	e.emit(models.DataLoaded{Org: org})
	return nil
}

func (e *Engine) loadRemoteSignatures(ctx context.Context, org string) {
	docs, err := e.remote.GetCollection(ctx, remote.SignaturesPrefix(org))
	if err != nil {
		log.Printf("sync: could not load signatures: %v", err)
		return
	}
	if len(docs) == 0 {
		return
	}

	incoming := make(models.SignatureSet, len(docs))
	for _, doc := range docs {
		var sig models.Signature
		if err := json.Unmarshal(doc.Envelope.Data, &sig); err != nil || sig.Name == "" {
			continue
		}
		incoming[sig.Name] = sig
	}
	if len(incoming) == 0 {
		return
	}

	merged := e.local.ReadSignatures().Merge(incoming)
	ts := e.sched.Now().UnixMilli()
	if err := e.local.WriteSignatures(merged, ts); err != nil {
		log.Printf("sync: could not store signatures: %v", err)
		return
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return
	}
	e.emit(models.DataUpdated{
		Type:      models.Signatures,
		Data:      raw,
		Source:    models.SourceRemote,
		Timestamp: ts,
		Org:       org,
	})
}

// SetOrganization switches the tenant namespace: all active subscriptions
// are torn down, the selection persists, and subscriptions plus remote data
// are re-established under the new organization after a short delay.
func (e *Engine) SetOrganization(ctx context.Context, org string) error {
	old := e.Org()
	log.Printf("sync: changing organization from %s to %s", old, org)

	e.rt.Stop()

	e.mu.Lock()
	e.org = org
	e.mu.Unlock()
	if err := e.local.SetOrg(org); err != nil {
		return fmt.Errorf("failed to persist organization: %w", err)
	}

	e.emit(models.OrgChanged{Org: org})

	e.afterFunc(500*time.Millisecond, func() {
		if err := e.LoadRemoteData(ctx); err != nil && !errors.Is(err, ErrUnavailable) {
			log.Printf("sync: reload for org %s failed: %v", org, err)
		}
	})
	e.afterFunc(time.Second, func() {
		if e.mon.IsOnline() {
			e.rt.Start(ctx)
		}
	})
	return nil
}

// Status returns a read-only snapshot.
func (e *Engine) Status() Status {
	userID, _ := e.userID()
	e.mu.Lock()
	state := e.state
	org := e.org
	e.mu.Unlock()

	return Status{
		Online:          e.mon.IsOnline(),
		State:           state.String(),
		Org:             org,
		Subscriptions:   e.rt.ActiveTypes(),
		QueueLength:     e.queue.Len(),
		UserID:          userID,
		RealtimeEnabled: e.cfg.RealtimeEnabled,
	}
}

// Subscribe registers an event callback and returns its cancel func.
func (e *Engine) Subscribe(fn func(models.Event)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) emit(ev models.Event) {
	e.mu.Lock()
	fns := make([]func(models.Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// handleOnline runs after a confirmed online transition. Repeats are safe:
// subscription setup skips existing watches and the drain guard no-ops.
func (e *Engine) handleOnline() {
	log.Printf("sync: now online - enabling real-time sync")
	e.emit(models.OnlineChanged{Online: true})

	ctx := context.Background()
	e.rt.Start(ctx)
	e.queue.Drain(ctx)

	e.afterFunc(2*time.Second, func() {
		if err := e.SyncAllLocalData(ctx); err != nil && !errors.Is(err, ErrUnavailable) {
			log.Printf("sync: post-online sync failed: %v", err)
		}
	})
}

// handleOffline runs after a confirmed offline transition.
func (e *Engine) handleOffline() {
	log.Printf("sync: now offline - disabling real-time sync")
	e.emit(models.OnlineChanged{Online: false})
	e.rt.Stop()
}

func (e *Engine) afterFunc(d time.Duration, fn func()) {
	t := e.sched.AfterFunc(d, fn)
	e.mu.Lock()
	e.timers = append(e.timers, t)
	e.mu.Unlock()
}

// emptyJSON reports whether raw is an empty collection value.
func emptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "[]", "{}", "null", `""`:
		return true
	}
	return false
}
