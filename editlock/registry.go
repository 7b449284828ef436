package editlock

import (
	"sync"
	"time"
)

// Session is the transient UI state for one authenticated session: its
// edit coordinator and the currently displayed list. None of it is
// persisted; it resets on logout.
type Session struct {
	mu           sync.Mutex
	coordinator  Coordinator
	selectedList int64
}

// Begin begins editing t, cancelling any active edit first.
func (s *Session) Begin(t Target) (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinator.Begin(t)
}

// Commit commits the active edit.
func (s *Session) Commit() (Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinator.Commit()
}

// Cancel cancels the active edit.
func (s *Session) Cancel() (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinator.Cancel()
}

// Active reports the active edit target.
func (s *Session) Active() (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinator.Active()
}

// Select records which list is displayed. Selecting resets any in-flight
// edit, matching navigation behavior.
func (s *Session) Select(listID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coordinator.Cancel()
	s.selectedList = listID
}

// Selected returns the displayed list id, zero when none is selected.
func (s *Session) Selected() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedList
}

// Registry tracks UI session state by session id. Entries idle longer
// than the ttl are dropped lazily, so sessions abandoned without a logout
// (the token simply expires) do not accumulate for the process lifetime.
type Registry struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*registryEntry
}

type registryEntry struct {
	state   *Session
	lastUse time.Time
}

// NewRegistry creates an empty Registry. A ttl of zero or less disables
// idle expiry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{ttl: ttl, sessions: make(map[string]*registryEntry)}
}

// Get returns the state for the given session id, creating it on first use
// and refreshing its idle clock.
func (r *Registry) Get(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.sweep(now)

	e, ok := r.sessions[sessionID]
	if !ok {
		e = &registryEntry{state: &Session{}}
		r.sessions[sessionID] = e
	}
	e.lastUse = now
	return e.state
}

// Drop discards the state for the given session id, typically on logout.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// sweep removes entries whose last use is older than the ttl. Callers must
// hold the lock.
func (r *Registry) sweep(now time.Time) {
	if r.ttl <= 0 {
		return
	}
	for id, e := range r.sessions {
		if now.Sub(e.lastUse) > r.ttl {
			delete(r.sessions, id)
		}
	}
}
