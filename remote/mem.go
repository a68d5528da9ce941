// ABOUTME: In-memory remote store fake with server timestamps and watch fan-out
// ABOUTME: Supports error injection and call counting for sync engine tests
package remote

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harperreed/orgsync/models"
)

// Mem is an in-memory Store. Writes get a server-assigned timestamp from the
// injectable clock, and watches fire synchronously on the writer's goroutine.
type Mem struct {
	mu        sync.Mutex
	docs      map[string]models.Envelope
	now       func() time.Time
	setErr    error
	pingErr   error
	setPaths  []string
	docSubs   map[string][]*memSub
	collSubs  map[string][]*memCollSub
	nextSubID int
}

type memSub struct {
	store   *Mem
	id      int
	path    string
	fn      func(models.Envelope)
	errFn   func(error)
	coll    bool
	collFn  func([]Doc)
	removed bool
}

type memCollSub = memSub

// NewMem returns an empty in-memory remote store.
func NewMem() *Mem {
	return &Mem{
		docs:     make(map[string]models.Envelope),
		now:      time.Now,
		docSubs:  make(map[string][]*memSub),
		collSubs: make(map[string][]*memCollSub),
	}
}

// SetClock injects the server clock used for UpdatedAt assignment.
func (m *Mem) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailWrites makes every Set return err until cleared with nil.
func (m *Mem) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// FailPings makes Ping return err until cleared with nil.
func (m *Mem) FailPings(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// SetPaths returns the paths of all successful writes, in order.
func (m *Mem) SetPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.setPaths...)
}

// Doc returns the stored envelope for a path, if present.
func (m *Mem) Doc(path string) (models.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, ok := m.docs[path]
	return env, ok
}

// Get returns the document at path, or (nil, nil) when absent.
func (m *Mem) Get(_ context.Context, path string) (*models.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, ok := m.docs[path]
	if !ok {
		return nil, nil
	}
	return &env, nil
}

// GetCollection returns all documents under prefix, sorted by path.
func (m *Mem) GetCollection(_ context.Context, prefix string) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collectionLocked(prefix), nil
}

func (m *Mem) collectionLocked(prefix string) []Doc {
	var docs []Doc
	for path, env := range m.docs {
		if strings.HasPrefix(path, prefix) {
			docs = append(docs, Doc{Path: path, Envelope: env})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs
}

// Set stores a document, assigning the server timestamp. With merge=true,
// envelope fields absent from env are preserved from the existing document.
func (m *Mem) Set(_ context.Context, path string, env models.Envelope, merge bool) error {
	m.mu.Lock()
	if m.setErr != nil {
		err := m.setErr
		m.mu.Unlock()
		return err
	}

	if merge {
		if old, ok := m.docs[path]; ok {
			if env.Data == nil {
				env.Data = old.Data
			}
			if env.UpdatedBy == "" {
				env.UpdatedBy = old.UpdatedBy
			}
			if env.ClientTimestamp == 0 {
				env.ClientTimestamp = old.ClientTimestamp
			}
			if env.Device == "" {
				env.Device = old.Device
			}
		}
	}
	env.UpdatedAt = m.now()
	m.docs[path] = env
	m.setPaths = append(m.setPaths, path)

	docSubs := append([]*memSub(nil), m.docSubs[path]...)
	type collNotify struct {
		sub  *memCollSub
		docs []Doc
	}
	var collNotifies []collNotify
	for prefix, subs := range m.collSubs {
		if strings.HasPrefix(path, prefix) {
			snapshot := m.collectionLocked(prefix)
			for _, sub := range subs {
				collNotifies = append(collNotifies, collNotify{sub, snapshot})
			}
		}
	}
	m.mu.Unlock()

	for _, sub := range docSubs {
		sub.fn(env)
	}
	for _, n := range collNotifies {
		n.sub.collFn(n.docs)
	}
	return nil
}

// Delete removes a document.
func (m *Mem) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
	return nil
}

// Watch subscribes to a single document, delivering the current envelope
// immediately when one exists.
func (m *Mem) Watch(path string, fn func(models.Envelope)) (Sub, error) {
	m.mu.Lock()
	m.nextSubID++
	sub := &memSub{store: m, id: m.nextSubID, path: path, fn: fn}
	m.docSubs[path] = append(m.docSubs[path], sub)
	env, ok := m.docs[path]
	m.mu.Unlock()

	if ok {
		fn(env)
	}
	return sub, nil
}

// WatchCollection subscribes to all documents under prefix, delivering the
// current snapshot immediately when non-empty.
func (m *Mem) WatchCollection(prefix string, fn func([]Doc)) (Sub, error) {
	m.mu.Lock()
	m.nextSubID++
	sub := &memSub{store: m, id: m.nextSubID, path: prefix, coll: true, collFn: fn}
	m.collSubs[prefix] = append(m.collSubs[prefix], sub)
	snapshot := m.collectionLocked(prefix)
	m.mu.Unlock()

	if len(snapshot) > 0 {
		fn(snapshot)
	}
	return sub, nil
}

// EnsureOrg creates the organization root document if absent.
func (m *Mem) EnsureOrg(ctx context.Context, org, createdBy string) error {
	path := OrgPath(org)
	m.mu.Lock()
	_, exists := m.docs[path]
	m.mu.Unlock()
	if exists {
		return nil
	}
	return m.Set(ctx, path, models.Envelope{UpdatedBy: createdBy}, false)
}

// Ping reports remote reachability.
func (m *Mem) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

// FailSub delivers an error to every subscription on path or prefix,
// simulating a broken change feed.
func (m *Mem) FailSub(path string, err error) {
	m.mu.Lock()
	var fns []func(error)
	for _, sub := range m.docSubs[path] {
		if sub.errFn != nil {
			fns = append(fns, sub.errFn)
		}
	}
	for _, sub := range m.collSubs[path] {
		if sub.errFn != nil {
			fns = append(fns, sub.errFn)
		}
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// SubCount returns the number of live subscriptions on path or prefix.
func (m *Mem) SubCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docSubs[path]) + len(m.collSubs[path])
}

func (s *memSub) Unsubscribe() {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.removed {
		return
	}
	s.removed = true
	if s.coll {
		s.store.collSubs[s.path] = removeSub(s.store.collSubs[s.path], s)
	} else {
		s.store.docSubs[s.path] = removeSub(s.store.docSubs[s.path], s)
	}
}

func (s *memSub) OnError(fn func(error)) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.errFn = fn
}

func removeSub(subs []*memSub, target *memSub) []*memSub {
	out := subs[:0]
	for _, sub := range subs {
		if sub.id != target.id {
			out = append(out, sub)
		}
	}
	return out
}
