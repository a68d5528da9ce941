// ABOUTME: User-facing status and notification emitter
// ABOUTME: Translates sync engine state into signals consumed by the UI layer
package notify

import (
	"log"
	"sync"
)

// Level classifies a notification.
type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Error   Level = "error"
)

// Notice is one user-visible message.
type Notice struct {
	Level   Level
	Message string
}

// Notifier receives user-visible sync notices. Rendering is out of scope;
// implementations forward to whatever surface the host application has.
type Notifier interface {
	Notify(n Notice)
}

// Log writes notices to the process log. The default notifier.
type Log struct{}

// Notify logs the notice.
func (Log) Notify(n Notice) {
	log.Printf("notify [%s]: %s", n.Level, n.Message)
}

// Capture records notices for test assertions.
type Capture struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify appends the notice.
func (c *Capture) Notify(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
}

// Notices returns everything captured so far.
func (c *Capture) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}

// Last returns the most recent notice, if any.
func (c *Capture) Last() (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.notices) == 0 {
		return Notice{}, false
	}
	return c.notices[len(c.notices)-1], true
}
