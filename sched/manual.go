// ABOUTME: Virtual-time scheduler for deterministic tests
// ABOUTME: Advance runs due callbacks in deadline order on the calling goroutine
package sched

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a virtual-time Scheduler. Timers fire only when Advance moves
// the clock past their deadline, on the goroutine calling Advance. Sleep
// returns immediately and records the requested duration, keeping
// single-goroutine tests free of deadlocks while still observable.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
	slept  []time.Duration
}

type manualTimer struct {
	sched    *Manual
	deadline time.Time
	seq      int
	fn       func()
	every    time.Duration // non-zero for tickers
	stopped  bool
}

// NewManual returns a virtual scheduler starting at a fixed epoch.
func NewManual() *Manual {
	return &Manual{now: time.Unix(1700000000, 0).UTC()}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules fn at now+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(d, fn, 0)
}

// Every schedules fn repeatedly at d intervals.
func (m *Manual) Every(d time.Duration, fn func()) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return manualTicker{t: m.addLocked(d, fn, d)}
}

type manualTicker struct {
	t *manualTimer
}

func (mt manualTicker) Stop() {
	mt.t.Stop()
}

func (m *Manual) addLocked(d time.Duration, fn func(), every time.Duration) *manualTimer {
	m.seq++
	t := &manualTimer{
		sched:    m,
		deadline: m.now.Add(d),
		seq:      m.seq,
		fn:       fn,
		every:    every,
	}
	m.timers = append(m.timers, t)
	return t
}

// Sleep records the requested pause and returns immediately.
func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.slept = append(m.slept, d)
	m.mu.Unlock()
	return nil
}

// Slept returns every duration passed to Sleep, in order.
func (m *Manual) Slept() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.slept...)
}

// Advance moves the virtual clock forward by d, firing due timers in
// deadline order (registration order breaks ties). Callbacks run on the
// calling goroutine and may schedule further timers.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		next := m.nextDueLocked(target)
		if next == nil {
			break
		}
		if next.deadline.After(m.now) {
			m.now = next.deadline
		}
		if next.every > 0 {
			next.deadline = next.deadline.Add(next.every)
		} else {
			next.stopped = true
		}
		fn := next.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}

	m.now = target
	m.compactLocked()
	m.mu.Unlock()
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].deadline.Equal(due[j].deadline) {
			return due[i].deadline.Before(due[j].deadline)
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}

func (m *Manual) compactLocked() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
}

// Pending returns the number of armed timers and tickers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (t *manualTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
