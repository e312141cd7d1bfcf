package session

import (
	"sort"

	"github.com/mcdev12/dito/go/internal/dito/images"
	"github.com/mcdev12/dito/go/internal/dito/timers"
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Get(room string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[room]
	return sess, ok
}

// Create registers a new session for room. The pairs slice is copied so the
// session owns its queue.
func (s *MemoryStore) Create(room string, players [2]Player, pairs []images.Pair, registry *timers.Registry) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[room]; ok {
		return nil, ErrSessionExists
	}

	sess := newSession(room, players, pairs, registry)
	s.sessions[room] = sess

	return sess, nil
}

// Remove deletes the session of room and reports whether one existed.
func (s *MemoryStore) Remove(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[room]; !ok {
		return false
	}
	delete(s.sessions, room)
	return true
}

func (s *MemoryStore) Exists(room string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[room]
	return ok
}

// Snapshots returns a view of every session ordered by room.
func (s *MemoryStore) Snapshots() []Snapshot {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		sess.Lock()
		out = append(out, sess.Snapshot())
		sess.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })

	return out
}
