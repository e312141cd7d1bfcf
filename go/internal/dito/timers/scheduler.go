package timers

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Step is one paced effect of a sequence. Delay is measured from the end of
// the previous step.
type Step struct {
	Delay time.Duration
	Do    func()
}

// Scheduler arms delayed actions on a clock. Production code uses
// clockwork.NewRealClock(); tests drive a fake clock.
type Scheduler struct {
	clock clockwork.Clock
}

// NewScheduler creates a scheduler on clock. A nil clock means real time.
func NewScheduler(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock}
}

// Clock returns the clock the scheduler runs on.
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// Schedule runs action once after delay unless the returned handle is
// canceled first.
func (s *Scheduler) Schedule(delay time.Duration, action func()) *Handle {
	return s.Sequence(Step{Delay: delay, Do: action})
}

// Sequence runs steps one after another, each after its own delay. Canceling
// the handle stops every step that has not started yet.
func (s *Scheduler) Sequence(steps ...Step) *Handle {
	h := &Handle{}
	if len(steps) == 0 {
		h.done = true
		return h
	}
	s.arm(h, steps)
	return h
}

func (s *Scheduler) arm(h *Handle, steps []Step) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.canceled {
		return
	}

	step, rest := steps[0], steps[1:]
	h.timer = s.clock.AfterFunc(step.Delay, func() {
		if !h.begin(len(rest) == 0) {
			return
		}
		if step.Do != nil {
			step.Do()
		}
		if len(rest) > 0 {
			s.arm(h, rest)
		}
	})
}

// Handle refers to an armed action or sequence.
type Handle struct {
	mu       sync.Mutex
	timer    clockwork.Timer
	canceled bool
	done     bool
}

// begin reports whether the next step may run; last marks the handle done.
func (h *Handle) begin(last bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.canceled {
		return false
	}
	if last {
		h.done = true
	}
	return true
}

// Cancel stops the pending action. It reports false when there was nothing
// left to stop. Canceling twice, or after the action ran, is a no-op.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done || h.canceled {
		h.canceled = true
		return false
	}
	h.canceled = true
	if h.timer != nil {
		h.timer.Stop()
	}
	return true
}

// Canceled reports whether Cancel was called.
func (h *Handle) Canceled() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canceled
}

// Pending reports whether the action can still run. A nil handle is never
// pending.
func (h *Handle) Pending() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.canceled && !h.done
}
