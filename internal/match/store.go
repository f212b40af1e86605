// internal/match/store.go
package match

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Store is the authoritative table of live sessions plus a player -> session index.
// It guards its maps but not the sessions themselves; only Engine mutates session fields.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byPlayer map[uuid.UUID]uuid.UUID
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*Session),
		byPlayer: make(map[uuid.UUID]uuid.UUID),
	}
}

// Add registers a session and indexes both of its players.
// It refuses sessions that don't have exactly two distinct players, or players already in a session.
func (s *Store) Add(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, b := sess.Players[0].ID, sess.Players[1].ID
	if a == uuid.Nil || b == uuid.Nil || a == b {
		return fmt.Errorf("session %s needs two distinct players", sess.ID)
	}
	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	for _, p := range sess.Players {
		if other, ok := s.byPlayer[p.ID]; ok {
			return fmt.Errorf("player %s already in session %s", p.ID, other)
		}
	}

	s.sessions[sess.ID] = sess
	s.byPlayer[a] = sess.ID
	s.byPlayer[b] = sess.ID
	return nil
}

// Get returns the session with the given id.
func (s *Store) Get(id uuid.UUID) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// SessionFor returns the id of the session a player is indexed to.
func (s *Store) SessionFor(playerID uuid.UUID) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPlayer[playerID]
	return id, ok
}

// Lookup resolves a player straight to their session.
func (s *Store) Lookup(playerID uuid.UUID) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	sess, ok := s.sessions[id]
	return sess, ok
}

// Unindex drops a single player's index entry without removing the session.
func (s *Store) Unindex(playerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byPlayer, playerID)
}

// Remove deletes a session and every index entry pointing at it.
func (s *Store) Remove(id uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	for _, p := range sess.Players {
		if s.byPlayer[p.ID] == id {
			delete(s.byPlayer, p.ID)
		}
	}
	delete(s.sessions, id)
	return sess, true
}

// IDs returns the ids of all live sessions.
func (s *Store) IDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Clear drops everything. Used on engine shutdown.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[uuid.UUID]*Session)
	s.byPlayer = make(map[uuid.UUID]uuid.UUID)
}
