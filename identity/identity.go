// ABOUTME: Identity provider contract for the sync engine
// ABOUTME: Read-only view of the current authenticated user plus change signal
package identity

import "sync"

// User is an authenticated identity. ID attributes remote writes.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Provider exposes the current authenticated identity. The sync engine only
// reads identity; login and logout belong to the external identity provider.
type Provider interface {
	// Current returns the authenticated user, or ok=false when anonymous.
	Current() (User, bool)
}

// Watcher is an optional Provider extension with an auth-state-changed
// notification stream.
type Watcher interface {
	OnChange(fn func(User, bool)) (cancel func())
}

// Static is a fixed identity provider, settable at runtime. Used for tests
// and for deployments where the identity is established out of band.
type Static struct {
	mu        sync.Mutex
	user      User
	ok        bool
	watchers  map[int]func(User, bool)
	nextWatch int
}

// NewStatic returns a provider with the given user. An empty ID means
// anonymous.
func NewStatic(user User) *Static {
	return &Static{
		user:     user,
		ok:       user.ID != "",
		watchers: make(map[int]func(User, bool)),
	}
}

// Current returns the configured user.
func (s *Static) Current() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.ok
}

// SetUser replaces the identity and notifies watchers.
func (s *Static) SetUser(user User) {
	s.mu.Lock()
	s.user = user
	s.ok = user.ID != ""
	fns := make([]func(User, bool), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	ok := s.ok
	s.mu.Unlock()

	for _, fn := range fns {
		fn(user, ok)
	}
}

// Clear drops the identity, leaving the provider anonymous.
func (s *Static) Clear() {
	s.SetUser(User{})
}

// OnChange registers an auth-state-changed callback.
func (s *Static) OnChange(fn func(User, bool)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWatch++
	id := s.nextWatch
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}
