package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dito/go/clients/slurk"
	"github.com/mcdev12/dito/go/internal/dito/config"
	"github.com/mcdev12/dito/go/internal/dito/events"
	"github.com/mcdev12/dito/go/internal/dito/images"
	"github.com/mcdev12/dito/go/internal/dito/session"
	"github.com/mcdev12/dito/go/internal/dito/timers"
	"github.com/rs/zerolog/log"
)

// Emitter sends an event to the chat server. Delivery is fire and forget.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

// AdminClient is the administrative REST API of the chat server.
type AdminClient interface {
	UserTask(ctx context.Context, userID int) (*slurk.Task, error)
	FreezeRoom(ctx context.Context, room string) error
	Users(ctx context.Context) ([]slurk.User, error)
	RenameUser(ctx context.Context, userID int, name string) error
}

// PairSupply hands out the image pairs of a new room.
type PairSupply interface {
	Assign(ctx context.Context) ([]images.Pair, error)
}

// Pacing spaces out consecutive messages so they read in order.
type Pacing struct {
	Ack          time.Duration // before repeated-command and ready acknowledgements
	Greeting     time.Duration // between greeting lines
	Rejoin       time.Duration // before showing the pair to a rejoined player
	CodeStep     time.Duration // around the final confirmation code
	CloseWarning time.Duration // between the two close notices
	CloseGrace   time.Duration // before the first player is moved out
	CloseMove    time.Duration // before each player is moved out
	WaitMore     time.Duration // before "You may also wait some more"
	WaitFollowUp time.Duration // between the two final waiting notices
}

// DefaultPacing matches the rhythm participants are used to.
func DefaultPacing() Pacing {
	return Pacing{
		Ack:          500 * time.Millisecond,
		Greeting:     500 * time.Millisecond,
		Rejoin:       2 * time.Second,
		CodeStep:     time.Second,
		CloseWarning: 2 * time.Second,
		CloseGrace:   15 * time.Second,
		CloseMove:    15 * time.Second,
		WaitMore:     5 * time.Second,
		WaitFollowUp: 2 * time.Second,
	}
}

type Config struct {
	TaskID      int
	WaitingRoom string

	ReadyDelay   time.Duration
	GameDelay    time.Duration
	WaitingDelay time.Duration
	AnswerDelay  time.Duration
	DoneGrace    time.Duration

	MinMessages int
	Pacing      Pacing

	Instructions config.Instructions
	Names        []string
}

// NewConfig derives the orchestrator settings from the loaded bot config.
func NewConfig(cfg *config.Config, instr config.Instructions, names []string) Config {
	return Config{
		TaskID:       cfg.TaskID,
		WaitingRoom:  cfg.WaitingRoom,
		ReadyDelay:   config.Minutes(cfg.Timers.Ready),
		GameDelay:    config.Minutes(cfg.Timers.Game),
		WaitingDelay: config.Minutes(cfg.Timers.Waiting),
		AnswerDelay:  config.Minutes(cfg.Timers.Answer),
		DoneGrace:    30 * time.Second,
		MinMessages:  5,
		Pacing:       DefaultPacing(),
		Instructions: instr,
		Names:        names,
	}
}

// Deps are the collaborators of an Orchestrator. Store, Clock and Rand are
// optional.
type Deps struct {
	Emitter Emitter
	Admin   AdminClient
	Supply  PairSupply
	Store   session.Store
	Clock   clockwork.Clock
	Rand    *rand.Rand
}

// Orchestrator runs the game of every task room the bot is responsible for.
type Orchestrator struct {
	cfg     Config
	emitter Emitter
	admin   AdminClient
	supply  PairSupply
	store   session.Store
	sched   *timers.Scheduler

	randMu sync.Mutex
	rng    *rand.Rand

	mu          sync.Mutex
	botID       int
	hasBotID    bool
	waiting     *timers.Handle
	waitingUser int
	tokens      map[int]struct{}
}

func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	store := deps.Store
	if store == nil {
		store = session.NewMemoryStore()
	}
	if cfg.WaitingRoom == "" {
		cfg.WaitingRoom = "waiting_room"
	}

	return &Orchestrator{
		cfg:     cfg,
		emitter: deps.Emitter,
		admin:   deps.Admin,
		supply:  deps.Supply,
		store:   store,
		sched:   timers.NewScheduler(deps.Clock),
		rng:     deps.Rand,
		tokens:  make(map[int]struct{}),
	}
}

// Announce tells the chat server the bot is ready to enter its first room.
func (o *Orchestrator) Announce(ctx context.Context) error {
	log.Info().Int("task_id", o.cfg.TaskID).Msg("spot the difference bot at your command")
	return o.emitter.Emit(ctx, events.EmitReady, nil)
}

// HandleEvent routes an inbound chat event to its handler. Events are
// expected in arrival order; malformed payloads are returned as errors.
func (o *Orchestrator) HandleEvent(ctx context.Context, eventType string, payload []byte) error {
	log.Debug().Str("event_type", eventType).Msg("handling chat event")

	switch eventType {
	case events.RoomCreated:
		var p events.RoomCreatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", eventType, err)
		}
		return o.handleRoomCreated(ctx, p)

	case events.JoinedRoom:
		var p events.JoinedRoomPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", eventType, err)
		}
		o.handleJoinedRoom(ctx, p)
		return nil

	case events.Status:
		var p events.StatusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", eventType, err)
		}
		o.handleStatus(ctx, p)
		return nil

	case events.TextMessage:
		var p events.TextMessagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", eventType, err)
		}
		o.handleTextMessage(ctx, p)
		return nil

	case events.Command:
		var p events.CommandPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", eventType, err)
		}
		o.handleCommand(ctx, p)
		return nil

	default:
		log.Debug().Str("event_type", eventType).Msg("ignoring unhandled event type")
		return nil
	}
}

// Snapshots reports every active session.
func (o *Orchestrator) Snapshots() []session.Snapshot {
	return o.store.Snapshots()
}

// Stop cancels the matchmaking timer. Room timers die with the process.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.waiting.Cancel()
	o.waiting = nil
}

// BotID returns the user id of the bot once the server told it.
func (o *Orchestrator) BotID() (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.botID, o.hasBotID
}

// lookup returns the live session of room, locked. The caller must unlock it.
func (o *Orchestrator) lookup(room string) (*session.Session, bool) {
	sess, ok := o.store.Get(room)
	if !ok {
		return nil, false
	}
	sess.Lock()
	if !sess.Live() {
		sess.Unlock()
		return nil, false
	}
	return sess, true
}

func (o *Orchestrator) emit(ctx context.Context, event string, payload any) {
	if err := o.emitter.Emit(ctx, event, payload); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("event", event).Msg("failed to emit event")
	}
}

// say sends msg to everyone in room.
func (o *Orchestrator) say(ctx context.Context, room, msg string) {
	o.emit(ctx, events.EmitText, events.TextPayload{Msg: msg, Room: room})
}

func (o *Orchestrator) sayHTML(ctx context.Context, room, msg string) {
	o.emit(ctx, events.EmitText, events.TextPayload{Msg: msg, Room: room, HTML: true})
}

// tell sends msg to a single user in room.
func (o *Orchestrator) tell(ctx context.Context, room string, userID int, msg string) {
	o.emit(ctx, events.EmitText, events.TextPayload{Msg: msg, Room: room, ReceiverID: events.Receiver(userID)})
}

func (o *Orchestrator) tellHTML(ctx context.Context, room string, userID int, msg string) {
	o.emit(ctx, events.EmitText, events.TextPayload{Msg: msg, Room: room, ReceiverID: events.Receiver(userID), HTML: true})
}

// after runs fn once d has passed, or right away for a zero delay. A delayed
// fn outlives the cancellation of ctx.
func (o *Orchestrator) after(ctx context.Context, d time.Duration, fn func(ctx context.Context)) {
	if d <= 0 {
		fn(ctx)
		return
	}
	detached := context.WithoutCancel(ctx)
	o.sched.Schedule(d, func() { fn(detached) })
}

func (o *Orchestrator) intN(n int) int {
	if o.rng == nil {
		return rand.IntN(n)
	}
	o.randMu.Lock()
	defer o.randMu.Unlock()
	return o.rng.IntN(n)
}

func (o *Orchestrator) checkInvariants(sess *session.Session) {
	if err := sess.CheckInvariants(); err != nil {
		log.Error().Err(err).Str("room", sess.Room).Msg("session invariant violated")
	}
}

func toPlayers(users []events.User) [2]session.Player {
	return [2]session.Player{
		{ID: users[0].ID, Name: users[0].Name},
		{ID: users[1].ID, Name: users[1].Name},
	}
}

func toPlayer(u events.User) session.Player {
	return session.Player{ID: u.ID, Name: u.Name}
}
