// ABOUTME: Durable FIFO queue of pending writes awaiting remote delivery
// ABOUTME: Bounded size, bounded retries, paced drain with org isolation
package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/orgsync/models"
	"github.com/harperreed/orgsync/remote"
	"github.com/harperreed/orgsync/sched"
	"github.com/harperreed/orgsync/store"
)

// Defaults per the sync design.
const (
	DefaultMax         = 100
	DefaultBatch       = 5
	DefaultMaxAttempts = 5
	DefaultPace        = 200 * time.Millisecond
	DefaultInterval    = 10 * time.Second
)

// Config bounds the queue and its drain cycle.
type Config struct {
	Max         int
	Batch       int
	MaxAttempts int
	Pace        time.Duration
	Interval    time.Duration
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{
		Max:         DefaultMax,
		Batch:       DefaultBatch,
		MaxAttempts: DefaultMaxAttempts,
		Pace:        DefaultPace,
		Interval:    DefaultInterval,
	}
}

// Hooks are the orchestrator-owned lookups the queue consults while
// draining.
type Hooks struct {
	// Org returns the currently selected organization.
	Org func() string

	// Online reports the confirmed connectivity state.
	Online func() bool

	// UserID returns the authenticated identity, or ok=false.
	UserID func() (string, bool)

	// OnStatus receives the pending count after every mutation.
	OnStatus func(pending int)

	// Device tags queued envelopes with the writing device.
	Device string
}

// Queue is the durable outbox. Items are delivered in FIFO order per drain
// cycle; an item queued under a different organization than the current one
// is dropped without delivery, and an item failing more than MaxAttempts
// times is discarded with loss rather than retried forever.
type Queue struct {
	mu       sync.Mutex
	local    *store.Local
	remote   remote.Store
	sched    sched.Scheduler
	cfg      Config
	hooks    Hooks
	items    []models.QueueItem
	draining bool
	ticker   sched.Ticker
}

// New creates a queue over the local store and remote store.
func New(local *store.Local, rs remote.Store, s sched.Scheduler, cfg Config, hooks Hooks) *Queue {
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Queue{
		local:  local,
		remote: rs,
		sched:  s,
		cfg:    cfg,
		hooks:  hooks,
	}
}

// Load restores the persisted queue from the local store.
func (q *Queue) Load() {
	q.mu.Lock()
	q.items = q.local.Queue()
	n := len(q.items)
	q.mu.Unlock()

	if n > 0 {
		log.Printf("queue: loaded %d pending items", n)
	}
	q.status(n)
}

// Enqueue appends a pending write for the current organization, trims to the
// newest Max entries, and persists.
func (q *Queue) Enqueue(dt models.DataType, data json.RawMessage) {
	item := models.QueueItem{
		ID:         ulid.Make().String(),
		DataType:   dt,
		Data:       data,
		EnqueuedAt: q.sched.Now().UnixMilli(),
		Org:        q.hooks.Org(),
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	if len(q.items) > q.cfg.Max {
		q.items = q.items[len(q.items)-q.cfg.Max:]
	}
	q.persistLocked()
	n := len(q.items)
	q.mu.Unlock()

	log.Printf("queue: added %s (%d pending)", dt, n)
	q.status(n)
}

// Len returns the pending item count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the pending items.
func (q *Queue) Items() []models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.QueueItem(nil), q.items...)
}

// Start arms the periodic drain.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ticker != nil {
		return
	}
	q.ticker = q.sched.Every(q.cfg.Interval, func() {
		q.Drain(ctx)
	})
}

// Stop cancels the periodic drain.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ticker != nil {
		q.ticker.Stop()
		q.ticker = nil
	}
}

// Drain pushes up to Batch head items to the remote store, in enqueue order,
// one at a time. No-op when offline, already draining, empty, or
// unauthenticated. Concurrent calls return immediately.
func (q *Queue) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.draining || len(q.items) == 0 || q.remote == nil {
		q.mu.Unlock()
		return
	}
	if q.hooks.Online != nil && !q.hooks.Online() {
		q.mu.Unlock()
		return
	}
	userID, ok := q.hooks.UserID()
	if !ok {
		q.mu.Unlock()
		return
	}
	q.draining = true
	batch := append([]models.QueueItem(nil), q.items...)
	if len(batch) > q.cfg.Batch {
		batch = batch[:q.cfg.Batch]
	}
	currentOrg := q.hooks.Org()
	q.mu.Unlock()

	log.Printf("queue: draining %d of %d items", len(batch), q.Len())

	results := make([]drainOutcome, 0, len(batch))

	for _, item := range batch {
		// Cross-tenant isolation: an item from another org is never
		// delivered. Treated as success so it leaves the queue.
		if item.Org != currentOrg {
			log.Printf("queue: dropping %s queued under org %s (current %s)", item.DataType, item.Org, currentOrg)
			results = append(results, drainOutcome{item, true})
			continue
		}

		err := q.deliver(ctx, item, userID)
		if err == nil {
			log.Printf("queue: synced %s", item.DataType)
			results = append(results, drainOutcome{item, true})
		} else {
			item.Attempts++
			if item.Attempts > q.cfg.MaxAttempts {
				log.Printf("queue: giving up on %s after %d attempts: %v", item.DataType, item.Attempts, err)
				results = append(results, drainOutcome{item, true})
			} else {
				log.Printf("queue: failed to sync %s (attempt %d): %v", item.DataType, item.Attempts, err)
				results = append(results, drainOutcome{item, false})
			}
		}

		// Pace deliveries so a large backlog does not hammer the remote.
		if err := q.sched.Sleep(ctx, q.cfg.Pace); err != nil {
			break
		}
	}

	q.mu.Lock()
	kept := q.items[:0]
	for _, existing := range q.items {
		res, found := matchOutcome(results, existing)
		switch {
		case !found:
			kept = append(kept, existing)
		case res.done:
			// removed
		default:
			kept = append(kept, res.item)
		}
	}
	q.items = append([]models.QueueItem(nil), kept...)
	q.persistLocked()
	n := len(q.items)
	q.draining = false
	q.mu.Unlock()

	q.status(n)
}

// drainOutcome records how one batch item fared. done means the item leaves
// the queue, whether delivered, dropped for org mismatch, or given up on.
type drainOutcome struct {
	item models.QueueItem
	done bool
}

func matchOutcome(results []drainOutcome, existing models.QueueItem) (drainOutcome, bool) {
	for _, r := range results {
		// Identity is dataType plus enqueue time, matching the persisted
		// shape across restarts.
		if r.item.DataType == existing.DataType && r.item.EnqueuedAt == existing.EnqueuedAt {
			return r, true
		}
	}
	return drainOutcome{}, false
}

// deliver writes one queued item to the remote store under its own org.
func (q *Queue) deliver(ctx context.Context, item models.QueueItem, userID string) error {
	if item.DataType == models.Signatures {
		return q.deliverSignatures(ctx, item, userID)
	}

	env := models.Envelope{
		Data:              item.Data,
		UpdatedBy:         userID,
		ClientTimestamp:   item.EnqueuedAt,
		Device:            q.hooks.Device,
		SyncedFromQueue:   true,
		OriginalTimestamp: item.EnqueuedAt,
	}
	return q.remote.Set(ctx, remote.DataPath(item.Org, item.DataType), env, true)
}

// deliverSignatures fans a queued signature set out into one merge-write per
// signature document.
func (q *Queue) deliverSignatures(ctx context.Context, item models.QueueItem, userID string) error {
	var set models.SignatureSet
	if err := json.Unmarshal(item.Data, &set); err != nil {
		// Corrupt payload cannot ever succeed; drop it.
		log.Printf("queue: dropping corrupt signature payload: %v", err)
		return nil
	}

	for name, sig := range set {
		raw, err := json.Marshal(sig)
		if err != nil {
			return err
		}
		env := models.Envelope{
			Data:              raw,
			UpdatedBy:         userID,
			ClientTimestamp:   item.EnqueuedAt,
			Device:            q.hooks.Device,
			SyncedFromQueue:   true,
			OriginalTimestamp: item.EnqueuedAt,
		}
		if err := q.remote.Set(ctx, remote.SignaturePath(item.Org, name), env, true); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) persistLocked() {
	if err := q.local.WriteQueue(q.items); err != nil {
		log.Printf("queue: failed to persist: %v", err)
	}
}

func (q *Queue) status(pending int) {
	if q.hooks.OnStatus != nil {
		q.hooks.OnStatus(pending)
	}
}
