package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dito/go/internal/dito/images"
	"github.com/mcdev12/dito/go/internal/dito/timers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = Player{ID: 7, Name: "Alice"}
	bob   = Player{ID: 3, Name: "Bob"}
)

func newTestSession(t *testing.T, pairs int) *Session {
	t.Helper()

	ps := make([]images.Pair, pairs)
	for i := range ps {
		ps[i] = images.Pair{fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)}
	}

	store := NewMemoryStore()
	sess, err := store.Create("room-1", [2]Player{alice, bob}, ps, timers.NewRegistry(timers.NewScheduler(clockwork.NewFakeClock())))
	require.NoError(t, err)
	return sess
}

func TestSessionParticipants(t *testing.T) {
	sess := newTestSession(t, 1)

	cur, other, ok := sess.Participants(bob.ID)
	require.True(t, ok)
	assert.Equal(t, bob, cur)
	assert.Equal(t, alice, other)

	_, _, ok = sess.Participants(99)
	assert.False(t, ok)
}

func TestSessionSortedIsStable(t *testing.T) {
	sess := newTestSession(t, 1)
	assert.Equal(t, [2]Player{bob, alice}, sess.Sorted())

	sess.Players = [2]Player{bob, alice}
	assert.Equal(t, [2]Player{bob, alice}, sess.Sorted())
}

func TestSessionMessagesOnlyCountWhenBothReady(t *testing.T) {
	sess := newTestSession(t, 1)

	sess.CountMessage()
	assert.Equal(t, 0, sess.MessageCount())

	sess.MarkReady(alice.ID)
	sess.CountMessage()
	assert.Equal(t, 0, sess.MessageCount())

	assert.Equal(t, 2, sess.MarkReady(bob.ID))
	sess.CountMessage()
	sess.CountMessage()
	assert.Equal(t, 2, sess.MessageCount())
	assert.NoError(t, sess.CheckInvariants())
}

func TestSessionReadyIsASet(t *testing.T) {
	sess := newTestSession(t, 1)

	assert.Equal(t, 1, sess.MarkReady(alice.ID))
	assert.Equal(t, 1, sess.MarkReady(alice.ID))
	assert.True(t, sess.IsReady(alice.ID))
	assert.False(t, sess.IsReady(bob.ID))
}

func TestSessionRoundReset(t *testing.T) {
	sess := newTestSession(t, 2)
	sess.MarkReady(alice.ID)
	sess.MarkReady(bob.ID)
	sess.CountMessage()
	sess.MarkDone(alice.ID)

	sess.ResetRound()
	assert.Equal(t, 0, sess.DoneCount())
	assert.Equal(t, 0, sess.MessageCount())
	assert.Equal(t, 2, sess.ReadyCount())
}

func TestSessionPairs(t *testing.T) {
	sess := newTestSession(t, 2)

	p, ok := sess.CurrentPair()
	require.True(t, ok)
	assert.Equal(t, images.Pair{"a0", "b0"}, p)

	assert.Equal(t, 1, sess.PopPair())
	p, _ = sess.CurrentPair()
	assert.Equal(t, images.Pair{"a1", "b1"}, p)

	assert.Equal(t, 0, sess.PopPair())
	_, ok = sess.CurrentPair()
	assert.False(t, ok)
	assert.Equal(t, 0, sess.PopPair())
}

func TestSessionLastSpeaker(t *testing.T) {
	sess := newTestSession(t, 1)

	_, ok := sess.LastSpeaker()
	assert.False(t, ok)

	assert.True(t, sess.SetLastSpeaker(alice))
	assert.False(t, sess.SetLastSpeaker(alice))
	assert.True(t, sess.SetLastSpeaker(bob))

	p, ok := sess.LastSpeaker()
	require.True(t, ok)
	assert.Equal(t, bob, p)
}

func TestSessionCheckInvariants(t *testing.T) {
	sess := newTestSession(t, 1)
	sess.MarkDone(alice.ID)
	assert.Error(t, sess.CheckInvariants())
}

func TestStoreCreateGetRemove(t *testing.T) {
	store := NewMemoryStore()
	reg := timers.NewRegistry(timers.NewScheduler(clockwork.NewFakeClock()))
	pairs := []images.Pair{{"a", "b"}}

	sess, err := store.Create("room-1", [2]Player{alice, bob}, pairs, reg)
	require.NoError(t, err)
	pairs[0] = images.Pair{"x", "y"}

	got, ok := store.Get("room-1")
	require.True(t, ok)
	assert.Same(t, sess, got)
	p, _ := got.CurrentPair()
	assert.Equal(t, images.Pair{"a", "b"}, p, "session owns a copy of its pairs")

	_, err = store.Create("room-1", [2]Player{alice, bob}, pairs, reg)
	assert.ErrorIs(t, err, ErrSessionExists)

	assert.True(t, store.Exists("room-1"))
	assert.True(t, store.Remove("room-1"))
	assert.False(t, store.Remove("room-1"))
	assert.False(t, store.Exists("room-1"))
}

func TestStoreSnapshots(t *testing.T) {
	store := NewMemoryStore()
	reg := func() *timers.Registry { return timers.NewRegistry(timers.NewScheduler(clockwork.NewFakeClock())) }

	_, err := store.Create("b-room", [2]Player{alice, bob}, []images.Pair{{"a", "b"}}, reg())
	require.NoError(t, err)
	_, err = store.Create("a-room", [2]Player{alice, bob}, []images.Pair{{"a", "b"}, {"c", "d"}}, reg())
	require.NoError(t, err)

	snaps := store.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "a-room", snaps[0].Room)
	assert.Equal(t, 2, snaps[0].Remaining)
	assert.Equal(t, "awaiting_ready", snaps[0].Phase)
}

func TestStoreConcurrentCreate(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg := timers.NewRegistry(timers.NewScheduler(clockwork.NewFakeClock()))
			if _, err := store.Create("shared", [2]Player{alice, bob}, nil, reg); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "in_round", InRound.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "unknown", Phase(42).String())
}

func TestSessionLive(t *testing.T) {
	sess := newTestSession(t, 1)
	for _, p := range []Phase{AwaitingReady, InRound, AwaitingDone} {
		sess.Phase = p
		assert.True(t, sess.Live(), p.String())
	}
	for _, p := range []Phase{Completed, Closing, Closed} {
		sess.Phase = p
		assert.False(t, sess.Live(), p.String())
	}
}
