package session

import (
	"sort"
	"sync"

	"github.com/muurk/wsgate/internal/protocol"
)

// Manager is the transport-independent view of a set of sessions.
type Manager interface {
	SendToAll(msg protocol.Message) int
	SendTo(id string, msg protocol.Message) bool
	AddSession(id string, s *Session) bool
	RemoveSession(id string) bool
	Sessions() []*Session
}

// Registry maps session IDs to sessions. The mutex guards the map only; no
// socket I/O and no callback runs while it is held.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

var _ Manager = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add stores s under id, replacing any session already registered under the
// same id. It returns false for a nil session.
func (r *Registry) Add(id string, s *Session) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return true
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Unregister removes s only if it is still the session stored under its ID,
// so a terminated session never evicts a newer one that reused the ID.
func (r *Registry) Unregister(s *Session) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.id]; !ok || cur != s {
		return false
	}
	delete(r.sessions, s.id)
	return true
}

// Get looks up a session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Entry is one registry row in a snapshot.
type Entry struct {
	ID      string
	Session *Session
}

// Snapshot copies the registry under the lock, ordered by ID.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.sessions))
	for id, s := range r.sessions {
		entries = append(entries, Entry{ID: id, Session: s})
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// ForEach calls fn for every entry of a snapshot. fn runs without the lock
// held and may call back into the registry.
func (r *Registry) ForEach(fn func(id string, s *Session)) {
	for _, e := range r.Snapshot() {
		fn(e.ID, e.Session)
	}
}

// SendToAll sends msg to every open session and returns how many accepted it.
func (r *Registry) SendToAll(msg protocol.Message) int {
	sent := 0
	r.ForEach(func(_ string, s *Session) {
		if s.IsOpen() && s.Send(msg) {
			sent++
		}
	})
	return sent
}

// SendTo sends msg to a single session.
func (r *Registry) SendTo(id string, msg protocol.Message) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	return s.Send(msg)
}

// AddSession implements Manager.
func (r *Registry) AddSession(id string, s *Session) bool {
	return r.Add(id, s)
}

// RemoveSession implements Manager.
func (r *Registry) RemoveSession(id string) bool {
	return r.Remove(id)
}

// Sessions returns the registered sessions ordered by ID.
func (r *Registry) Sessions() []*Session {
	entries := r.Snapshot()
	out := make([]*Session, len(entries))
	for i, e := range entries {
		out[i] = e.Session
	}
	return out
}
