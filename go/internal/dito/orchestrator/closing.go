package orchestrator

import (
	"context"
	"strconv"
	"strings"

	"github.com/mcdev12/dito/go/internal/dito/events"
	"github.com/mcdev12/dito/go/internal/dito/session"
	"github.com/mcdev12/dito/go/internal/dito/timers"
	"github.com/rs/zerolog/log"
)

// Confirmation code outcomes.
const (
	statusSuccess   = "success"
	statusNoPartner = "no_partner"
	statusNoReply   = "no_reply"

	confirmationLogType = "confirmation_log"
	codeAlphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength          = 6
)

const (
	enterTokenMsg = "Please enter the following token into the field on the HIT webpage, and close this browser window. "
	yourTokenMsg  = "Here is your token: "
	moveOutMsg    = "You will be moved out of this room in 30s."
	copyTokenMsg  = "Make sure to copy your token before that."
	refreshMsg    = "Please refresh this page if you are interested in playing another round."
)

func (o *Orchestrator) newCode() string {
	var b strings.Builder
	b.Grow(codeLength)
	for range codeLength {
		b.WriteByte(codeAlphabet[o.intN(len(codeAlphabet))])
	}
	return b.String()
}

// confirmationCode issues a code for the crowd-work platform. A nil receiver
// sends it to everyone in room.
func (o *Orchestrator) confirmationCode(ctx context.Context, room, status string, receiver *int) string {
	code := o.newCode()

	log.Info().
		Str("room", room).
		Str("type", confirmationLogType).
		Str("amt_token", code).
		Str("status_txt", status).
		Msg("issued confirmation code")

	o.emit(ctx, events.EmitLog, events.ConfirmationLogPayload{
		Room:      room,
		Type:      confirmationLogType,
		AmtToken:  code,
		StatusTxt: status,
	})
	o.emit(ctx, events.EmitText, events.TextPayload{Msg: enterTokenMsg, Room: room, ReceiverID: receiver})
	o.emit(ctx, events.EmitText, events.TextPayload{Msg: yourTokenMsg + code, Room: room, ReceiverID: receiver})

	return code
}

// complete ends a game whose pairs are all solved. The caller must hold the
// session lock.
func (o *Orchestrator) complete(ctx context.Context, sess *session.Session) {
	log.Info().Str("room", sess.Room).Msg("game completed")

	sess.Phase = session.Completed
	sess.ResetRound()
	sess.Timers.CancelAll()
	o.say(ctx, sess.Room, gameOverMsg)

	detached := context.WithoutCancel(ctx)
	o.sched.Sequence(
		timers.Step{Delay: o.cfg.Pacing.CodeStep, Do: func() {
			o.confirmationCode(detached, sess.Room, statusSuccess, nil)
		}},
		timers.Step{Delay: o.cfg.Pacing.CodeStep, Do: func() {
			sess.Lock()
			defer sess.Unlock()
			o.closeGame(detached, sess)
		}},
	)
}

// closeGame freezes the room and walks both players back to the waiting room
// before the session is dropped. Every timer is canceled first, so nothing
// scheduled for the game can fire once closing starts. The caller must hold
// the session lock.
func (o *Orchestrator) closeGame(ctx context.Context, sess *session.Session) {
	if sess.Phase >= session.Closing {
		return
	}
	sess.Phase = session.Closing
	sess.Timers.CancelAll()

	room, players := sess.Room, sess.Players
	log.Info().Str("room", room).Msg("closing room")

	o.say(ctx, room, moveOutMsg)

	detached := context.WithoutCancel(ctx)
	steps := []timers.Step{
		{Delay: o.cfg.Pacing.CloseWarning, Do: func() {
			o.say(detached, room, copyTokenMsg)
			if err := o.admin.FreezeRoom(detached, room); err != nil {
				log.Error().Err(err).Str("room", room).Msg("failed to set room read only")
			}
		}},
		{Delay: o.cfg.Pacing.CloseGrace},
	}
	for _, player := range players {
		steps = append(steps, timers.Step{Delay: o.cfg.Pacing.CloseMove, Do: func() {
			o.moveToWaitingRoom(detached, room, player)
		}})
	}
	steps = append(steps, timers.Step{Do: func() {
		o.renameUsers(detached, players)

		sess.Lock()
		sess.Phase = session.Closed
		sess.Unlock()
		o.store.Remove(room)

		log.Info().Str("room", room).Msg("room closed")
	}})

	o.sched.Sequence(steps...)
}

func (o *Orchestrator) moveToWaitingRoom(ctx context.Context, room string, player session.Player) {
	o.emit(ctx, events.EmitJoinRoom, events.RoomMovePayload{User: player.ID, Room: o.cfg.WaitingRoom})
	o.emit(ctx, events.EmitLeaveRoom, events.RoomMovePayload{User: player.ID, Room: room})
	o.tell(ctx, o.cfg.WaitingRoom, player.ID, refreshMsg)
}

// renameUsers gives both players a fresh pseudonym so they cannot recognise
// each other in a later game.
func (o *Orchestrator) renameUsers(ctx context.Context, players [2]session.Player) {
	if len(o.cfg.Names) == 0 {
		log.Warn().Msg("no names configured, skipping rename")
		return
	}

	users, err := o.admin.Users(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list users for rename")
		return
	}
	taken := make(map[string]struct{}, len(users))
	for _, u := range users {
		taken[u.Name] = struct{}{}
	}

	for _, player := range players {
		name := uniqueName(o.cfg.Names[o.intN(len(o.cfg.Names))], taken)
		delete(taken, player.Name)
		taken[name] = struct{}{}

		if err := o.admin.RenameUser(ctx, player.ID, name); err != nil {
			log.Error().Err(err).Int("user_id", player.ID).Msg("failed to rename user")
			continue
		}
		log.Info().Int("user_id", player.ID).Str("name", name).Msg("renamed user")
	}
}

// uniqueName returns base, or base with the smallest numeric suffix from 2 on
// that is not taken.
func uniqueName(base string, taken map[string]struct{}) string {
	if _, ok := taken[base]; !ok {
		return base
	}
	for suffix := 2; ; suffix++ {
		name := base + strconv.Itoa(suffix)
		if _, ok := taken[name]; !ok {
			return name
		}
	}
}
