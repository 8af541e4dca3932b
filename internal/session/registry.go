package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ellykits/lite-quest/internal/questionnaire"
)

// ErrNotFound is returned when a session id is unknown or already closed.
var ErrNotFound = errors.New("session not found")

// Session pairs a manager with its registry bookkeeping.
type Session struct {
	ID        string
	Manager   *Manager
	CreatedAt time.Time

	mu         sync.Mutex
	lastAccess time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

// LastAccess returns when the session was last used.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Registry is the in-memory session store behind the HTTP surface. Nothing
// is persisted; hosts that need durability export the response document.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create starts a new session for the questionnaire and returns it.
func (r *Registry) Create(q *questionnaire.Questionnaire, opts ...Option) *Session {
	now := r.now()
	s := &Session{
		ID:         uuid.NewString(),
		Manager:    NewManager(q, opts...),
		CreatedAt:  now,
		lastAccess: now,
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get looks a session up and marks it as accessed.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Delete closes a session and removes it.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Manager.Close()
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes and removes sessions idle for longer than maxIdle, returning
// how many were reaped.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.LastAccess().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Manager.Close()
	}
	return len(expired)
}
