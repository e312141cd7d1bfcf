package session

import (
	"fmt"
	"sort"

	"github.com/mcdev12/dito/go/internal/dito/images"
	"github.com/mcdev12/dito/go/internal/dito/timers"
)

func newSession(room string, players [2]Player, pairs []images.Pair, registry *timers.Registry) *Session {
	owned := make([]images.Pair, len(pairs))
	copy(owned, pairs)

	return &Session{
		Room:    room,
		Players: players,
		Phase:   AwaitingReady,
		ready:   make(map[int]struct{}, 2),
		done:    make(map[int]struct{}, 2),
		pairs:   owned,
		present: map[int]bool{players[0].ID: true, players[1].ID: true},
		Timers:  registry,
	}
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Live reports whether the game is still running. Events and timers for a
// session that is no longer live are dropped.
func (s *Session) Live() bool {
	return s.Phase < Completed
}

// Participants returns the player with id and their partner.
func (s *Session) Participants(id int) (current, other Player, ok bool) {
	switch id {
	case s.Players[0].ID:
		return s.Players[0], s.Players[1], true
	case s.Players[1].ID:
		return s.Players[1], s.Players[0], true
	default:
		return Player{}, Player{}, false
	}
}

// Sorted returns the players ordered by id, which fixes who sees which image
// of a pair no matter in which order they joined.
func (s *Session) Sorted() [2]Player {
	out := s.Players
	sort.Slice(out[:], func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Session) IsReady(id int) bool {
	_, ok := s.ready[id]
	return ok
}

// MarkReady adds id to the ready set and returns its new size.
func (s *Session) MarkReady(id int) int {
	s.ready[id] = struct{}{}
	return len(s.ready)
}

func (s *Session) ReadyCount() int { return len(s.ready) }

// BothReady reports whether the game has started.
func (s *Session) BothReady() bool { return len(s.ready) == 2 }

func (s *Session) IsDone(id int) bool {
	_, ok := s.done[id]
	return ok
}

// MarkDone adds id to the done set and returns its new size.
func (s *Session) MarkDone(id int) int {
	s.done[id] = struct{}{}
	return len(s.done)
}

func (s *Session) DoneCount() int { return len(s.done) }

// ClearDone forgets every /done of the current round.
func (s *Session) ClearDone() {
	clear(s.done)
}

// CountMessage counts a discussion message. Messages only count once both
// players are ready.
func (s *Session) CountMessage() {
	if s.BothReady() {
		s.messageCount++
	}
}

func (s *Session) MessageCount() int { return s.messageCount }

// ResetRound clears the per-round state.
func (s *Session) ResetRound() {
	clear(s.done)
	s.messageCount = 0
}

// LastSpeaker returns the author of the latest message, if any.
func (s *Session) LastSpeaker() (Player, bool) {
	if s.lastSpeaker == nil {
		return Player{}, false
	}
	return *s.lastSpeaker, true
}

// SetLastSpeaker records p as the author of the latest message and reports
// whether the speaker changed.
func (s *Session) SetLastSpeaker(p Player) bool {
	if s.lastSpeaker != nil && s.lastSpeaker.ID == p.ID {
		return false
	}
	s.lastSpeaker = &p
	return true
}

// CurrentPair returns the pair of the running round.
func (s *Session) CurrentPair() (images.Pair, bool) {
	if len(s.pairs) == 0 {
		return images.Pair{}, false
	}
	return s.pairs[0], true
}

// PopPair drops the pair of the finished round and returns how many remain.
func (s *Session) PopPair() int {
	if len(s.pairs) > 0 {
		s.pairs = s.pairs[1:]
	}
	return len(s.pairs)
}

func (s *Session) Remaining() int { return len(s.pairs) }

// SetPresent records whether a player is connected to the room.
func (s *Session) SetPresent(id int, present bool) {
	s.present[id] = present
}

func (s *Session) Present(id int) bool { return s.present[id] }

// CheckInvariants reports a broken round invariant: done marks and counted
// messages only exist while both players are ready.
func (s *Session) CheckInvariants() error {
	if len(s.ready) < 2 && len(s.done) > 0 {
		return fmt.Errorf("room %s: %d done with %d ready", s.Room, len(s.done), len(s.ready))
	}
	if len(s.ready) < 2 && s.messageCount > 0 {
		return fmt.Errorf("room %s: %d messages counted with %d ready", s.Room, s.messageCount, len(s.ready))
	}
	if len(s.ready) > 2 || len(s.done) > 2 {
		return fmt.Errorf("room %s: sets exceed two players", s.Room)
	}
	return nil
}

// Snapshot copies the session for reporting.
func (s *Session) Snapshot() Snapshot {
	pending := 0
	if s.Timers != nil {
		pending = s.Timers.PendingCount()
	}
	return Snapshot{
		Room:      s.Room,
		Phase:     s.Phase.String(),
		Players:   []Player{s.Players[0], s.Players[1]},
		Ready:     len(s.ready),
		Done:      len(s.done),
		Messages:  s.messageCount,
		Remaining: len(s.pairs),
		Timers:    pending,
	}
}
