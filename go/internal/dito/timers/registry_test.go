package timers

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func TestSchedulerRunsActionAfterDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)

	var fired atomic.Int32
	h := s.Schedule(time.Minute, func() { fired.Add(1) })

	clock.Advance(59 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.True(t, h.Pending())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, tick)
	assert.False(t, h.Pending())
	assert.False(t, h.Cancel(), "cancel after firing stops nothing")
}

func TestSchedulerCancelSuppressesAction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)

	var fired atomic.Int32
	h := s.Schedule(time.Minute, func() { fired.Add(1) })

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel(), "second cancel is a no-op")
	clock.Advance(2 * time.Minute)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(0), fired.Load())
	assert.True(t, h.Canceled())
}

func TestSchedulerSequenceKeepsOrder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)

	var mu sync.Mutex
	var got []string
	record := func(v string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, v)
		}
	}

	h := s.Sequence(
		Step{Delay: time.Second, Do: record("first")},
		Step{Delay: 0, Do: record("second")},
		Step{Delay: 2 * time.Second, Do: record("third")},
	)

	require.Eventually(t, func() bool {
		clock.Advance(500 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, waitFor, tick)

	assert.Equal(t, []string{"first", "second", "third"}, got)
	assert.False(t, h.Pending())
}

func TestSchedulerSequenceCancelStopsRemainingSteps(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)

	var count atomic.Int32
	h := s.Sequence(
		Step{Delay: time.Second, Do: func() { count.Add(1) }},
		Step{Delay: time.Hour, Do: func() { count.Add(1) }},
	)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return count.Load() == 1 }, waitFor, tick)

	assert.True(t, h.Cancel())
	clock.Advance(2 * time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestEmptySequenceIsDone(t *testing.T) {
	h := NewScheduler(clockwork.NewFakeClock()).Sequence()
	assert.False(t, h.Pending())
}

func TestRegistryRescheduleKeepsSinglePendingAction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(NewScheduler(clock))

	var first, second atomic.Int32
	r.Schedule(ReadyReminder, time.Minute, func(*Handle) { first.Add(1) })
	r.Cancel(ReadyReminder)
	h := r.Schedule(ReadyReminder, time.Minute, func(*Handle) { second.Add(1) })

	assert.Equal(t, 1, r.PendingCount())
	assert.True(t, r.Owns(ReadyReminder, h))

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return second.Load() == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestRegistryScheduleReplacesOccupant(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(NewScheduler(clock))

	var fired []string
	var mu sync.Mutex
	mark := func(v string) func(*Handle) {
		return func(*Handle) {
			mu.Lock()
			defer mu.Unlock()
			fired = append(fired, v)
		}
	}

	old := r.Schedule(AnswerTimeout, time.Minute, mark("old"))
	r.Schedule(AnswerTimeout, 2*time.Minute, mark("new"))

	assert.True(t, old.Canceled())
	assert.False(t, r.Owns(AnswerTimeout, old))

	clock.Advance(3 * time.Minute)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, waitFor, tick)
	assert.Equal(t, []string{"new"}, fired)
}

func TestRegistryCancelEmptySlotIsNoop(t *testing.T) {
	r := NewRegistry(NewScheduler(clockwork.NewFakeClock()))
	r.Cancel(DoneGrace)
	assert.False(t, r.Pending(DoneGrace))
	assert.Equal(t, 0, r.PendingCount())
}

func TestRegistryCancelAll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(NewScheduler(clock))

	var fired atomic.Int32
	for _, slot := range Slots {
		r.Schedule(slot, time.Minute, func(*Handle) { fired.Add(1) })
	}
	require.Equal(t, 4, r.PendingCount())

	r.CancelAll()
	assert.Equal(t, 0, r.PendingCount())

	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestRegistryReleaseOnlyClearsOwnHandle(t *testing.T) {
	r := NewRegistry(NewScheduler(clockwork.NewFakeClock()))

	old := r.Schedule(RoundDeadline, time.Minute, func(*Handle) {})
	current := r.Schedule(RoundDeadline, time.Minute, func(*Handle) {})

	r.Release(RoundDeadline, old)
	assert.True(t, r.Pending(RoundDeadline))

	r.Release(RoundDeadline, current)
	assert.False(t, r.Pending(RoundDeadline))
}

func TestSlotString(t *testing.T) {
	assert.Equal(t, "ready_reminder", ReadyReminder.String())
	assert.Equal(t, "round_deadline", RoundDeadline.String())
	assert.Equal(t, "done_grace", DoneGrace.String())
	assert.Equal(t, "answer_timeout", AnswerTimeout.String())
	assert.Equal(t, "unknown", Slot(99).String())
}

func TestNilHandleIsIdle(t *testing.T) {
	var h *Handle
	assert.False(t, h.Pending())
	assert.False(t, h.Canceled())
	assert.False(t, h.Cancel())
}
