package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/dito/go/internal/dito/events"
	"github.com/mcdev12/dito/go/internal/dito/session"
	"github.com/mcdev12/dito/go/internal/dito/timers"
	"github.com/rs/zerolog/log"
)

const (
	rejoinedMsg    = "%s has rejoined the game. "
	leftMsg        = "%s has left the game. Please wait a bit, your partner may rejoin."
	typeReadyMsg   = "Type **/ready** to begin the game."
	currentImageID = "current-image"
	instrTitleID   = "instr_title"
	instrID        = "instr"
	srcAttribute   = "src"
)

// handleRoomCreated sets up a session for a freshly paired room of our task.
func (o *Orchestrator) handleRoomCreated(ctx context.Context, p events.RoomCreatedPayload) error {
	log.Info().Str("room", p.Room).Int("task", p.Task).Int("task_id", o.cfg.TaskID).Msg("task room created")

	if p.Task != o.cfg.TaskID {
		return nil
	}
	if len(p.Users) != 2 {
		return fmt.Errorf("room %s: expected 2 users, got %d", p.Room, len(p.Users))
	}

	if o.store.Exists(p.Room) {
		log.Warn().Str("room", p.Room).Msg("session already exists, ignoring duplicate room creation")
		return nil
	}

	o.matched(p.Users)

	pairs, err := o.supply.Assign(ctx)
	if err != nil {
		return fmt.Errorf("assign pairs to room %s: %w", p.Room, err)
	}

	sess, err := o.store.Create(p.Room, toPlayers(p.Users), pairs, timers.NewRegistry(o.sched))
	if err != nil {
		if errors.Is(err, session.ErrSessionExists) {
			log.Warn().Str("room", p.Room).Msg("session already exists, ignoring duplicate room creation")
			return nil
		}
		return fmt.Errorf("create session for room %s: %w", p.Room, err)
	}

	sess.Lock()
	o.armReadyReminder(sess)
	sess.Unlock()

	botID, ok := o.BotID()
	if !ok {
		log.Warn().Str("room", p.Room).Msg("bot user id unknown while joining task room")
	}
	o.emit(ctx, events.EmitJoinRoom, events.RoomMovePayload{User: botID, Room: p.Room})

	log.Info().Str("room", p.Room).Int("pairs", len(pairs)).Msg("session created")
	return nil
}

// handleJoinedRoom learns the bot's own id and greets the players of a task
// room.
func (o *Orchestrator) handleJoinedRoom(ctx context.Context, p events.JoinedRoomPayload) {
	o.mu.Lock()
	if !o.hasBotID {
		o.botID, o.hasBotID = p.User, true
		log.Info().Int("bot_id", p.User).Msg("learned own user id")
	}
	o.mu.Unlock()

	if p.Room == o.cfg.WaitingRoom {
		return
	}
	log.Info().Str("room", p.Room).Msg("joined task room")
	o.greet(p.Room)
}

// greet posts the greeting lines one by one and then shows the last line as
// the instruction title.
func (o *Orchestrator) greet(room string) {
	ctx := context.Background()

	var steps []timers.Step
	last := ""
	for i, line := range o.cfg.Instructions.Greeting {
		// greeting files escape line breaks
		line = strings.ReplaceAll(strings.TrimSpace(line), `\n`, "\n")
		last = line

		delay := o.cfg.Pacing.Greeting
		if i == 0 {
			delay = 0
		}
		steps = append(steps, timers.Step{Delay: delay, Do: func() {
			o.emit(ctx, events.EmitText, events.TextPayload{Msg: line, Room: room, HTML: true})
		}})
	}
	steps = append(steps, timers.Step{Delay: o.cfg.Pacing.Greeting, Do: func() {
		o.emit(ctx, events.EmitSetText, events.SetTextPayload{ID: instrTitleID, Text: last, Room: room})
	}})

	o.sched.Sequence(steps...)
}

// handleStatus reacts to players joining or leaving a room. Events of users
// outside our task are dropped.
func (o *Orchestrator) handleStatus(ctx context.Context, p events.StatusPayload) {
	if !o.eligible(ctx, p.User.ID) {
		log.Debug().Int("user_id", p.User.ID).Str("room", p.Room).Msg("ignoring status of user outside task")
		return
	}

	switch p.Type {
	case events.StatusJoin:
		log.Info().Str("user", p.User.Name).Str("room", p.Room).Msg("user joined")
		if p.Room == o.cfg.WaitingRoom {
			o.startWaiting(p.User.ID)
			return
		}
		o.rejoin(ctx, p)

	case events.StatusLeave:
		log.Info().Str("user", p.User.Name).Str("room", p.Room).Msg("user left")
		if p.Room == o.cfg.WaitingRoom {
			o.stopWaiting()
			return
		}
		o.leave(ctx, p)
	}
}

func (o *Orchestrator) eligible(ctx context.Context, userID int) bool {
	task, err := o.admin.UserTask(ctx, userID)
	if err != nil {
		log.Debug().Err(err).Int("user_id", userID).Msg("task lookup failed")
		return false
	}
	return task != nil && task.ID == o.cfg.TaskID
}

func (o *Orchestrator) rejoin(ctx context.Context, p events.StatusPayload) {
	sess, ok := o.lookup(p.Room)
	if !ok {
		return
	}
	defer sess.Unlock()

	current, other, ok := sess.Participants(p.User.ID)
	if !ok {
		return
	}
	sess.SetPresent(current.ID, true)

	o.tell(ctx, sess.Room, other.ID, fmt.Sprintf(rejoinedMsg, current.Name))

	log.Info().Str("room", sess.Room).Int("ready", sess.ReadyCount()).Msg("players ready in room")
	if sess.BothReady() {
		o.sched.Schedule(o.cfg.Pacing.Rejoin, func() {
			sess.Lock()
			defer sess.Unlock()
			if sess.Live() && sess.Present(current.ID) {
				o.present(context.Background(), sess, &current)
			}
		})
		return
	}

	for _, player := range sess.Players {
		if !sess.IsReady(player.ID) {
			o.tellHTML(ctx, sess.Room, player.ID, typeReadyMsg)
		}
	}
}

func (o *Orchestrator) leave(ctx context.Context, p events.StatusPayload) {
	sess, ok := o.lookup(p.Room)
	if !ok {
		return
	}
	defer sess.Unlock()

	current, other, ok := sess.Participants(p.User.ID)
	if !ok {
		return
	}
	sess.SetPresent(current.ID, false)

	o.tell(ctx, sess.Room, other.ID, fmt.Sprintf(leftMsg, current.Name))
}

// present shows the current pair, one image per player. Players are sorted by
// id so each keeps their side of the pair across rejoins. A non-nil only
// limits the update to that player. The caller must hold the session lock.
func (o *Orchestrator) present(ctx context.Context, sess *session.Session, only *session.Player) {
	pair, ok := sess.CurrentPair()
	if !ok {
		return
	}
	log.Info().Str("room", sess.Room).Int("remaining", sess.Remaining()).Msg("showing image pair")

	var receiver *int
	if only != nil {
		receiver = events.Receiver(only.ID)
	}

	for i, player := range sess.Sorted() {
		if only != nil && only.ID != player.ID {
			continue
		}
		o.emit(ctx, events.EmitSetAttribute, events.SetAttributePayload{
			ID:         currentImageID,
			Attribute:  srcAttribute,
			Value:      pair[i],
			Room:       sess.Room,
			ReceiverID: events.Receiver(player.ID),
		})
	}

	o.emit(ctx, events.EmitSetText, events.SetTextPayload{ID: instrTitleID, Text: o.cfg.Instructions.InstrTitle, Room: sess.Room, ReceiverID: receiver})
	o.emit(ctx, events.EmitSetText, events.SetTextPayload{ID: instrID, Text: o.cfg.Instructions.Instr, Room: sess.Room, ReceiverID: receiver})
}
