package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps the live sessions of the server, keyed by id.
type Store struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	assistant         Assistant
	defaultCredential string
	now               func() time.Time
}

// NewStore creates an empty store. New sessions start with
// defaultCredential, which may be empty.
func NewStore(assistant Assistant, defaultCredential string) *Store {
	return &Store{
		sessions:          make(map[string]*Session),
		assistant:         assistant,
		defaultCredential: defaultCredential,
		now:               time.Now,
	}
}

// Create starts a new session with a random id.
func (s *Store) Create() *Session {
	sess := newSession(uuid.NewString(), s.assistant, s.defaultCredential, s.now)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
	return sess
}

// Get returns the session with id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// GetOrCreate returns the session with id, or a new one when id is unknown.
func (s *Store) GetOrCreate(id string) *Session {
	if sess, ok := s.Get(id); ok {
		return sess
	}
	return s.Create()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Expire removes sessions idle for longer than idle and returns how many
// were dropped. Sessions busy with a remote call are never idle.
func (s *Store) Expire(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.RLock()
	var stale []string
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if sess.updatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
		sess.mu.Unlock()
	}
	s.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range stale {
		delete(s.sessions, id)
	}
	return len(stale)
}
