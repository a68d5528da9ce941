// ABOUTME: Debounced connectivity monitor with periodic state reconciliation
// ABOUTME: Confirms online after 1s, offline after 500ms, polls every 10s
package netmon

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/harperreed/orgsync/sched"
)

// Default debounce and poll intervals.
const (
	DefaultOnlineDelay  = 1000 * time.Millisecond
	DefaultOfflineDelay = 500 * time.Millisecond
	DefaultPollEvery    = 10 * time.Second
)

// Probe reports the low-level connectivity state.
type Probe interface {
	Online() bool
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func() bool

// Online calls the function.
func (f ProbeFunc) Online() bool {
	return f()
}

// PingProbe adapts a remote Ping call to the Probe interface.
type PingProbe struct {
	Ping func(ctx context.Context) error
}

// Online reports whether the remote answered.
func (p PingProbe) Online() bool {
	return p.Ping(context.Background()) == nil
}

// Monitor derives a stable online/offline state from a flapping low-level
// signal. A reported transition only takes effect after its confirmation
// window passes without the opposite signal; a periodic poll reconciles
// state when a transition event was missed entirely.
type Monitor struct {
	mu sync.Mutex

	probe Probe
	sched sched.Scheduler

	online       bool
	onlineDelay  time.Duration
	offlineDelay time.Duration
	pollEvery    time.Duration

	onlineTimer  sched.Timer
	offlineTimer sched.Timer
	poll         sched.Ticker

	onOnline  func()
	onOffline func()
}

// New creates a monitor with the default windows. onOnline and onOffline
// fire after a transition is confirmed; both must tolerate repeat calls.
func New(probe Probe, s sched.Scheduler, onOnline, onOffline func()) *Monitor {
	return &Monitor{
		probe:        probe,
		sched:        s,
		onlineDelay:  DefaultOnlineDelay,
		offlineDelay: DefaultOfflineDelay,
		pollEvery:    DefaultPollEvery,
		onOnline:     onOnline,
		onOffline:    onOffline,
	}
}

// SetDelays overrides the confirmation windows and poll interval. Zero values
// keep the current setting. Call before Start.
func (m *Monitor) SetDelays(online, offline, poll time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if online > 0 {
		m.onlineDelay = online
	}
	if offline > 0 {
		m.offlineDelay = offline
	}
	if poll > 0 {
		m.pollEvery = poll
	}
}

// Start samples the initial state (without firing callbacks) and arms the
// reconciliation poll.
func (m *Monitor) Start() {
	m.mu.Lock()
	m.online = m.probe.Online()
	m.poll = m.sched.Every(m.pollEvery, m.checkState)
	m.mu.Unlock()
}

// Stop cancels the poll and any pending confirmation timers.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poll != nil {
		m.poll.Stop()
		m.poll = nil
	}
	m.clearTimersLocked()
}

// IsOnline returns the last confirmed state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Signal feeds a low-level connectivity report. The transition is applied
// only after its confirmation window elapses without a contrary signal.
func (m *Monitor) Signal(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearTimersLocked()

	if online {
		m.onlineTimer = m.sched.AfterFunc(m.onlineDelay, func() {
			m.confirm(true)
		})
	} else {
		m.offlineTimer = m.sched.AfterFunc(m.offlineDelay, func() {
			m.confirm(false)
		})
	}
}

func (m *Monitor) clearTimersLocked() {
	if m.onlineTimer != nil {
		m.onlineTimer.Stop()
		m.onlineTimer = nil
	}
	if m.offlineTimer != nil {
		m.offlineTimer.Stop()
		m.offlineTimer = nil
	}
}

// confirm applies a debounced transition. Callbacks fire even when the state
// matches: the owner treats repeats as no-ops, and a confirm after a missed
// event repairs half-armed subscriptions.
func (m *Monitor) confirm(online bool) {
	m.mu.Lock()
	m.online = online
	fn := m.onOffline
	if online {
		fn = m.onOnline
	}
	m.mu.Unlock()

	if online {
		log.Printf("netmon: online confirmed")
	} else {
		log.Printf("netmon: offline confirmed")
	}
	if fn != nil {
		fn()
	}
}

// checkState is the 10s poll: when the probe disagrees with the last known
// state the transition fires immediately, covering missed signals.
func (m *Monitor) checkState() {
	current := m.probe.Online()

	m.mu.Lock()
	known := m.online
	m.mu.Unlock()

	if current != known {
		log.Printf("netmon: poll detected missed transition (online=%v)", current)
		m.confirm(current)
	}
}
