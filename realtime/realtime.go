// ABOUTME: Realtime subscription manager for remote document change feeds
// ABOUTME: Applies inbound updates locally, suppresses self-echoes, retries on error
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/harperreed/orgsync/identity"
	"github.com/harperreed/orgsync/models"
	"github.com/harperreed/orgsync/notify"
	"github.com/harperreed/orgsync/remote"
	"github.com/harperreed/orgsync/sched"
	"github.com/harperreed/orgsync/store"
)

// DefaultRetryDelay is the fixed delay before re-opening a subscription
// after a delivery error. Retries are indefinite: transient remote errors
// are expected to self-resolve.
const DefaultRetryDelay = 5 * time.Second

const signaturesKey = "signatures"

// Deps are the injected collaborators.
type Deps struct {
	Remote   remote.Store
	Local    *store.Local
	Identity identity.Provider
	Sched    sched.Scheduler
	Notifier notify.Notifier

	// Org returns the currently selected organization.
	Org func() string

	// Online reports the confirmed connectivity state.
	Online func() bool

	// Emit publishes an engine event.
	Emit func(models.Event)
}

// Manager owns the subscription lifecycle: one document watch per collection
// type plus one collection watch for signatures, at most one active
// subscription per (data type, organization) pair.
type Manager struct {
	mu         sync.Mutex
	deps       Deps
	enabled    bool
	retryDelay time.Duration
	subs       map[string]remote.Sub

	// generation invalidates scheduled retries from a previous Start.
	generation int
}

// New creates a manager. enabled=false disables subscription setup entirely.
func New(deps Deps, enabled bool) *Manager {
	return &Manager{
		deps:       deps,
		enabled:    enabled,
		retryDelay: DefaultRetryDelay,
		subs:       make(map[string]remote.Sub),
	}
}

// SetRetryDelay overrides the reconnect delay.
func (m *Manager) SetRetryDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryDelay = d
}

// Start ensures the organization exists remotely, then opens every
// subscription. No-op when disabled, offline, or without a remote store.
func (m *Manager) Start(ctx context.Context) {
	if !m.enabled || m.deps.Remote == nil {
		return
	}
	if m.deps.Online != nil && !m.deps.Online() {
		log.Printf("realtime: skipping subscription setup (offline)")
		return
	}

	org := m.deps.Org()
	author := "system"
	if user, ok := m.deps.Identity.Current(); ok {
		author = user.ID
	}
	if err := m.deps.Remote.EnsureOrg(ctx, org, author); err != nil {
		log.Printf("realtime: failed to ensure org %s: %v", org, err)
		return
	}

	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	log.Printf("realtime: setting up listeners for org %s", org)
	for _, dt := range models.CollectionTypes() {
		m.watchDoc(gen, org, dt)
	}
	m.watchSignatures(gen, org)
}

// Stop unsubscribes everything and clears the subscription set. Pending
// reconnect retries from this generation are invalidated.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.generation++
	subs := m.subs
	m.subs = make(map[string]remote.Sub)
	m.mu.Unlock()

	if len(subs) > 0 {
		log.Printf("realtime: removing %d listeners", len(subs))
	}
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// ActiveTypes returns the data types with a live subscription, sorted.
func (m *Manager) ActiveTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.subs))
	for key := range m.subs {
		types = append(types, key)
	}
	sort.Strings(types)
	return types
}

// watchDoc opens the document subscription for one collection type. A
// delivery error schedules a reconnect of this single subscription after the
// retry delay, indefinitely.
func (m *Manager) watchDoc(gen int, org string, dt models.DataType) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	if _, exists := m.subs[string(dt)]; exists {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	path := remote.DataPath(org, dt)
	sub, err := m.deps.Remote.Watch(path, func(env models.Envelope) {
		m.handleDocUpdate(org, dt, env)
	})
	if err != nil {
		log.Printf("realtime: failed to watch %s: %v", path, err)
		m.scheduleRetry(gen, org, dt)
		return
	}

	sub.OnError(func(err error) {
		log.Printf("realtime: %s listener error: %v", dt, err)
		m.dropSub(string(dt))
		m.scheduleRetry(gen, org, dt)
	})

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	m.subs[string(dt)] = sub
	m.mu.Unlock()
}

// watchSignatures opens the collection subscription for signature documents.
func (m *Manager) watchSignatures(gen int, org string) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	if _, exists := m.subs[signaturesKey]; exists {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	prefix := remote.SignaturesPrefix(org)
	sub, err := m.deps.Remote.WatchCollection(prefix, func(docs []remote.Doc) {
		m.handleSignaturesUpdate(org, docs)
	})
	if err != nil {
		log.Printf("realtime: failed to watch signatures: %v", err)
		m.scheduleSignaturesRetry(gen, org)
		return
	}

	sub.OnError(func(err error) {
		log.Printf("realtime: signatures listener error: %v", err)
		m.dropSub(signaturesKey)
		m.scheduleSignaturesRetry(gen, org)
	})

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	m.subs[signaturesKey] = sub
	m.mu.Unlock()
}

func (m *Manager) dropSub(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, key)
}

func (m *Manager) scheduleRetry(gen int, org string, dt models.DataType) {
	m.deps.Sched.AfterFunc(m.retryDelayNow(), func() {
		if m.stale(gen) || m.deps.Org() != org {
			return
		}
		m.watchDoc(gen, org, dt)
	})
}

func (m *Manager) scheduleSignaturesRetry(gen int, org string) {
	m.deps.Sched.AfterFunc(m.retryDelayNow(), func() {
		if m.stale(gen) || m.deps.Org() != org {
			return
		}
		m.watchSignatures(gen, org)
	})
}

func (m *Manager) retryDelayNow() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryDelay
}

func (m *Manager) stale(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.generation
}

// handleDocUpdate applies one inbound collection snapshot. Updates authored
// by the current identity are self-echoes and are ignored: the local write
// already happened, re-applying it would only spam notifications.
func (m *Manager) handleDocUpdate(org string, dt models.DataType, env models.Envelope) {
	if env.Data == nil {
		return
	}
	if user, ok := m.deps.Identity.Current(); ok && env.UpdatedBy == user.ID {
		return
	}

	ts := env.Timestamp()
	if err := m.deps.Local.WriteCollection(dt, env.Data, ts); err != nil {
		log.Printf("realtime: failed to store %s update: %v", dt, err)
	}

	log.Printf("realtime: %s updated from remote (by %s)", dt, shortID(env.UpdatedBy))
	m.deps.Emit(models.DataUpdated{
		Type:      dt,
		Data:      env.Data,
		Source:    models.SourceRemote,
		Timestamp: ts,
		Org:       org,
	})
	m.notice(dt, env.Data)
}

// handleSignaturesUpdate merges a signature collection snapshot over the
// local set; remote entries win on collision.
func (m *Manager) handleSignaturesUpdate(org string, docs []remote.Doc) {
	if len(docs) == 0 {
		return
	}

	incoming := make(models.SignatureSet, len(docs))
	for _, doc := range docs {
		var sig models.Signature
		if err := json.Unmarshal(doc.Envelope.Data, &sig); err != nil || sig.Name == "" {
			continue
		}
		if sig.UpdatedAt == 0 {
			sig.UpdatedAt = doc.Envelope.Timestamp()
		}
		incoming[sig.Name] = sig
	}
	if len(incoming) == 0 {
		return
	}

	merged := m.deps.Local.ReadSignatures().Merge(incoming)
	ts := m.deps.Sched.Now().UnixMilli()
	if err := m.deps.Local.WriteSignatures(merged, ts); err != nil {
		log.Printf("realtime: failed to store signatures update: %v", err)
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return
	}
	log.Printf("realtime: %d signatures updated from remote", len(incoming))
	m.deps.Emit(models.DataUpdated{
		Type:      models.Signatures,
		Data:      raw,
		Source:    models.SourceRemote,
		Timestamp: ts,
		Org:       org,
	})
	if m.deps.Notifier != nil {
		m.deps.Notifier.Notify(notify.Notice{
			Level:   notify.Info,
			Message: fmt.Sprintf("%d signatures updated from another device", len(incoming)),
		})
	}
}

// notice emits the user-facing "updated from another device" message.
func (m *Manager) notice(dt models.DataType, data json.RawMessage) {
	if m.deps.Notifier == nil {
		return
	}

	var message string
	switch dt {
	case models.AttendanceNames:
		var names []string
		count := 0
		if err := json.Unmarshal(data, &names); err == nil {
			for _, n := range names {
				if n != "" {
					count++
				}
			}
		}
		message = fmt.Sprintf("%d names updated", count)
	case models.ReportTitles:
		message = "Titles updated"
	case models.AttendanceInfo:
		message = "Info updated"
	case models.AttendanceDate:
		message = "Date updated"
	default:
		message = "Data updated"
	}

	m.deps.Notifier.Notify(notify.Notice{
		Level:   notify.Info,
		Message: message + " from another device",
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
