package session

import (
	"errors"
	"sync"

	"github.com/mcdev12/dito/go/internal/dito/images"
	"github.com/mcdev12/dito/go/internal/dito/timers"
)

var ErrSessionExists = errors.New("session already exists for room")

// Phase is the top-level state of a room.
type Phase int

const (
	AwaitingReady Phase = iota
	InRound
	AwaitingDone
	Completed
	Closing
	Closed
)

func (p Phase) String() string {
	switch p {
	case AwaitingReady:
		return "awaiting_ready"
	case InRound:
		return "in_round"
	case AwaitingDone:
		return "awaiting_done"
	case Completed:
		return "completed"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Player is a participant of a room.
type Player struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Session is the in-memory state of one two-player room. All fields are
// guarded by the session lock; callers hold Lock for the whole
// read-modify-write of a handler.
type Session struct {
	mu sync.Mutex

	Room    string
	Players [2]Player
	Phase   Phase

	ready        map[int]struct{}
	done         map[int]struct{}
	messageCount int
	lastSpeaker  *Player
	pairs        []images.Pair
	present      map[int]bool

	Timers *timers.Registry
}

// Snapshot is a read-only view of a session for stats.
type Snapshot struct {
	Room      string   `json:"room"`
	Phase     string   `json:"phase"`
	Players   []Player `json:"players"`
	Ready     int      `json:"ready"`
	Done      int      `json:"done"`
	Messages  int      `json:"messages"`
	Remaining int      `json:"remaining_pairs"`
	Timers    int      `json:"pending_timers"`
}

// Store maps room identifiers to sessions.
type Store interface {
	Get(room string) (*Session, bool)
	Create(room string, players [2]Player, pairs []images.Pair, registry *timers.Registry) (*Session, error)
	Remove(room string) bool
	Exists(room string) bool
	Snapshots() []Snapshot
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}
