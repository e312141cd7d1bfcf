package timers

import (
	"sync"
	"time"
)

// Slot names one of the per-room timers.
type Slot int

const (
	// ReadyReminder asks participants to type /ready.
	ReadyReminder Slot = iota
	// RoundDeadline nudges a long discussion towards an answer.
	RoundDeadline
	// DoneGrace resets a one-sided /done.
	DoneGrace
	// AnswerTimeout ends the game when a message stays unanswered.
	AnswerTimeout

	slotCount
)

// Slots lists every slot in a stable order.
var Slots = [slotCount]Slot{ReadyReminder, RoundDeadline, DoneGrace, AnswerTimeout}

func (s Slot) String() string {
	switch s {
	case ReadyReminder:
		return "ready_reminder"
	case RoundDeadline:
		return "round_deadline"
	case DoneGrace:
		return "done_grace"
	case AnswerTimeout:
		return "answer_timeout"
	default:
		return "unknown"
	}
}

// Registry keeps at most one pending action per slot for a single room.
type Registry struct {
	sched *Scheduler

	mu    sync.Mutex
	slots [slotCount]*Handle
}

// NewRegistry creates an empty registry on sched.
func NewRegistry(sched *Scheduler) *Registry {
	return &Registry{sched: sched}
}

// Schedule arms action in slot, canceling whatever the slot held. The action
// receives its own handle so it can confirm with Owns that it was not
// replaced or canceled while it waited to run.
func (r *Registry) Schedule(slot Slot, delay time.Duration, action func(h *Handle)) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slots[slot].Cancel()

	h := &Handle{}
	r.slots[slot] = h
	r.sched.arm(h, []Step{{Delay: delay, Do: func() { action(h) }}})
	return h
}

// Cancel clears slot. Canceling an empty or already fired slot is a no-op.
func (r *Registry) Cancel(slot Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slots[slot].Cancel()
	r.slots[slot] = nil
}

// CancelAll clears every slot.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		r.slots[i].Cancel()
		r.slots[i] = nil
	}
}

// Owns reports whether h is still the live occupant of slot.
func (r *Registry) Owns(slot Slot, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return h != nil && r.slots[slot] == h && !h.Canceled()
}

// Release empties slot if h still occupies it. Fired actions call this so the
// slot reads as idle afterwards.
func (r *Registry) Release(slot Slot, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slots[slot] == h {
		r.slots[slot] = nil
	}
}

// Pending reports whether slot holds an action that has not run yet.
func (r *Registry) Pending(slot Slot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.slots[slot]
	return h != nil && h.Pending()
}

// PendingCount returns the number of slots with a pending action.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, h := range r.slots {
		if h != nil && h.Pending() {
			n++
		}
	}
	return n
}
