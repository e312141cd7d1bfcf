package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dito/go/clients/slurk"
	"github.com/mcdev12/dito/go/internal/dito/config"
	"github.com/mcdev12/dito/go/internal/dito/events"
	"github.com/mcdev12/dito/go/internal/dito/images"
	"github.com/mcdev12/dito/go/internal/dito/session"
	"github.com/stretchr/testify/require"
)

const (
	taskID   = 1
	testRoom = "room-1"
	waitFor  = 2 * time.Second
	tick     = 2 * time.Millisecond
)

var (
	alice = events.User{ID: 7, Name: "Alice"}
	bob   = events.User{ID: 3, Name: "Bob"}
)

type emitted struct {
	Event   string
	Payload any
}

type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) Emit(_ context.Context, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{Event: event, Payload: payload})
	return nil
}

func (r *recorder) all() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]emitted, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) texts() []events.TextPayload {
	var out []events.TextPayload
	for _, e := range r.all() {
		if p, ok := e.Payload.(events.TextPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

// textsTo returns the messages addressed to userID only.
func (r *recorder) textsTo(userID int) []string {
	var out []string
	for _, p := range r.texts() {
		if p.ReceiverID != nil && *p.ReceiverID == userID {
			out = append(out, p.Msg)
		}
	}
	return out
}

// broadcasts returns the messages sent to the whole room.
func (r *recorder) broadcasts() []string {
	var out []string
	for _, p := range r.texts() {
		if p.ReceiverID == nil {
			out = append(out, p.Msg)
		}
	}
	return out
}

func (r *recorder) logs() []events.ConfirmationLogPayload {
	var out []events.ConfirmationLogPayload
	for _, e := range r.all() {
		if p, ok := e.Payload.(events.ConfirmationLogPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *recorder) attributes() []events.SetAttributePayload {
	var out []events.SetAttributePayload
	for _, e := range r.all() {
		if p, ok := e.Payload.(events.SetAttributePayload); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *recorder) moves(event string) []events.RoomMovePayload {
	var out []events.RoomMovePayload
	for _, e := range r.all() {
		if p, ok := e.Payload.(events.RoomMovePayload); ok && e.Event == event {
			out = append(out, p)
		}
	}
	return out
}

type fakeAdmin struct {
	mu      sync.Mutex
	tasks   map[int]*slurk.Task
	taskErr error
	users   []slurk.User
	frozen  []string
	renamed map[int]string
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		tasks: map[int]*slurk.Task{
			alice.ID: {ID: taskID},
			bob.ID:   {ID: taskID},
		},
		users:   []slurk.User{{ID: alice.ID, Name: alice.Name}, {ID: bob.ID, Name: bob.Name}},
		renamed: make(map[int]string),
	}
}

func (a *fakeAdmin) UserTask(_ context.Context, userID int) (*slurk.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.taskErr != nil {
		return nil, a.taskErr
	}
	return a.tasks[userID], nil
}

func (a *fakeAdmin) FreezeRoom(_ context.Context, room string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frozen = append(a.frozen, room)
	return nil
}

func (a *fakeAdmin) Users(context.Context) ([]slurk.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]slurk.User(nil), a.users...), nil
}

func (a *fakeAdmin) RenameUser(_ context.Context, userID int, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.renamed[userID] = name
	return nil
}

func (a *fakeAdmin) renames() map[int]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int]string, len(a.renamed))
	for k, v := range a.renamed {
		out[k] = v
	}
	return out
}

func (a *fakeAdmin) frozenRooms() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.frozen...)
}

type fixedSupply struct {
	pairs []images.Pair
	err   error
}

func (s *fixedSupply) Assign(context.Context) ([]images.Pair, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.pairs, nil
}

func testPairs(n int) []images.Pair {
	pairs := make([]images.Pair, n)
	for i := range pairs {
		pairs[i] = images.Pair{fmt.Sprintf("left-%d.jpg", i), fmt.Sprintf("right-%d.jpg", i)}
	}
	return pairs
}

type harness struct {
	t      *testing.T
	clock  *clockwork.FakeClock
	rec    *recorder
	admin  *fakeAdmin
	store  *session.MemoryStore
	supply *fixedSupply
	orch   *Orchestrator
	cfg    Config
}

func testConfig() Config {
	return Config{
		TaskID:       taskID,
		WaitingRoom:  "waiting_room",
		ReadyDelay:   time.Minute,
		GameDelay:    5 * time.Minute,
		WaitingDelay: 5 * time.Minute,
		AnswerDelay:  90 * time.Second,
		DoneGrace:    30 * time.Second,
		MinMessages:  5,
		Instructions: config.Instructions{
			Greeting:   []string{"Welcome!", `Line one\nline two`},
			InstrTitle: "Spot the difference",
			Instr:      "Talk to your partner.",
		},
		Names: []string{"Ada"},
	}
}

func newHarness(t *testing.T, pairs int, opts ...func(*Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{
		t:      t,
		clock:  clockwork.NewFakeClock(),
		rec:    &recorder{},
		admin:  newFakeAdmin(),
		store:  session.NewMemoryStore(),
		supply: &fixedSupply{pairs: testPairs(pairs)},
		cfg:    cfg,
	}
	h.orch = NewOrchestrator(cfg, Deps{
		Emitter: h.rec,
		Admin:   h.admin,
		Supply:  h.supply,
		Store:   h.store,
		Clock:   h.clock,
		Rand:    rand.New(rand.NewPCG(1, 2)),
	})
	t.Cleanup(h.orch.Stop)
	return h
}

func (h *harness) send(eventType string, payload any) {
	h.t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(h.t, err)
	require.NoError(h.t, h.orch.HandleEvent(context.Background(), eventType, data))
}

func (h *harness) createRoom() *session.Session {
	h.t.Helper()
	h.send(events.RoomCreated, events.RoomCreatedPayload{Room: testRoom, Task: taskID, Users: []events.User{alice, bob}})
	sess, ok := h.store.Get(testRoom)
	require.True(h.t, ok)
	return sess
}

func (h *harness) command(u events.User, cmd string) {
	h.t.Helper()
	h.send(events.Command, events.CommandPayload{Command: cmd, Room: testRoom, User: u})
}

func (h *harness) message(u events.User, msg string) {
	h.t.Helper()
	h.send(events.TextMessage, events.TextMessagePayload{Msg: msg, Room: testRoom, User: u})
}

func (h *harness) status(kind, room string, u events.User) {
	h.t.Helper()
	h.send(events.Status, events.StatusPayload{Type: kind, Room: room, User: u})
}

// startGame creates the room and gets both players ready.
func (h *harness) startGame() *session.Session {
	h.t.Helper()
	sess := h.createRoom()
	h.command(alice, "ready")
	h.command(bob, "ready")
	return sess
}

// discuss exchanges n messages, alternating speakers.
func (h *harness) discuss(n int) {
	h.t.Helper()
	for i := range n {
		if i%2 == 0 {
			h.message(alice, fmt.Sprintf("message %d", i))
		} else {
			h.message(bob, fmt.Sprintf("message %d", i))
		}
	}
}

// inspect runs fn with the session locked.
func (h *harness) inspect(sess *session.Session, fn func(*session.Session)) {
	sess.Lock()
	defer sess.Unlock()
	fn(sess)
}

func (h *harness) eventually(cond func() bool, msgAndArgs ...any) {
	h.t.Helper()
	require.Eventually(h.t, cond, waitFor, tick, msgAndArgs...)
}

// advanceUntil moves the clock forward in steps until cond holds. Paced
// sequences arm their next step only after the previous one ran, so a single
// big jump is not enough.
func (h *harness) advanceUntil(step time.Duration, cond func() bool) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		if cond() {
			return true
		}
		h.clock.Advance(step)
		return cond()
	}, waitFor, tick)
}

// settle gives asynchronous callbacks a moment to run before asserting that
// nothing happened.
func settle() {
	time.Sleep(20 * time.Millisecond)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

var errLookup = errors.New("lookup failed")
