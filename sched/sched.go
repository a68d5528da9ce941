// ABOUTME: Logical timer scheduler used for debounce, retry, and pacing delays
// ABOUTME: Real implementation wraps the time package; tests advance virtual time
package sched

import (
	"context"
	"time"
)

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired.
	Stop() bool
}

// Ticker is a repeating callback.
type Ticker interface {
	Stop()
}

// Scheduler is the clock and timer source for the sync engine. Everything
// time-driven (debounce windows, drain intervals, retry backoff, pacing)
// goes through here so tests can advance virtual time deterministically.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Ticker
	Sleep(ctx context.Context, d time.Duration) error
}

// Real schedules on the wall clock.
type Real struct{}

// NewReal returns the wall-clock scheduler.
func NewReal() Real {
	return Real{}
}

// Now returns the current wall time.
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc runs fn once after d.
func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

// Every runs fn every d until stopped.
func (Real) Every(d time.Duration, fn func()) Ticker {
	t := &realTicker{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.ticker.C:
				fn()
			case <-t.done:
				return
			}
		}
	}()
	return t
}

// Sleep pauses for d or until ctx is done.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Stop() bool {
	return r.t.Stop()
}

type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
}

func (r *realTicker) Stop() {
	r.ticker.Stop()
	close(r.done)
}
