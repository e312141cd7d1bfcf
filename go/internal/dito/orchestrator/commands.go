package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcdev12/dito/go/internal/dito/events"
	"github.com/mcdev12/dito/go/internal/dito/session"
	"github.com/mcdev12/dito/go/internal/dito/timers"
	"github.com/rs/zerolog/log"
)

const (
	alreadyReadyMsg   = "You have already typed /ready."
	waitPartnerMsg    = "Now, waiting for your partner to type /ready."
	gameBeginsMsg     = "Woo-Hoo! The game will begin now."
	notStartedMsg     = "The game has not started yet."
	discussMoreMsg    = "Are you sure? Please discuss some more!"
	waitDoneMsg       = "Let's wait for your partner to also type **/done**."
	partnerDoneMsg    = "Your partner thinks that you have found the difference. Type **/done** if you agree with him."
	alreadyDoneMsg    = "You have already typed **/done**."
	nextImageMsg      = "Ok, let's get both of you the next image. %d to go!"
	gameOverMsg       = "The game is over! Thank you for participating!"
	waitForAnswerMsg  = "Please wait some more for an answer."
	unknownCommandMsg = "Sorry, but I do not understand this command."
)

// isCommand reports whether a chat line was meant as a command.
func isCommand(msg string) bool {
	return strings.HasPrefix(msg, "ready") ||
		strings.HasPrefix(msg, "done") ||
		isNoReply(msg)
}

func isNoReply(cmd string) bool {
	return cmd == "noreply" || cmd == "no reply"
}

// handleTextMessage counts discussion messages and watches for unanswered
// ones. Lines that look like commands are treated as such.
func (o *Orchestrator) handleTextMessage(ctx context.Context, p events.TextMessagePayload) {
	if botID, ok := o.BotID(); ok && p.User.ID == botID {
		return
	}

	if isCommand(p.Msg) {
		o.handleCommand(ctx, events.CommandPayload{Command: p.Msg, Room: p.Room, User: p.User})
		return
	}

	sess, ok := o.lookup(p.Room)
	if !ok {
		return
	}
	defer sess.Unlock()

	speaker, _, ok := sess.Participants(p.User.ID)
	if !ok {
		return
	}

	if sess.SetLastSpeaker(speaker) {
		log.Info().Str("room", sess.Room).Str("user", speaker.Name).Msg("user awaits an answer")
		o.armAnswerTimeout(sess, speaker)
	}
	sess.CountMessage()

	o.checkInvariants(sess)
}

// handleCommand dispatches a slash command of a player.
func (o *Orchestrator) handleCommand(ctx context.Context, p events.CommandPayload) {
	sess, ok := o.lookup(p.Room)
	if !ok {
		return
	}
	defer sess.Unlock()

	current, other, ok := sess.Participants(p.User.ID)
	if !ok {
		log.Debug().Str("room", p.Room).Int("user_id", p.User.ID).Msg("command from non-player ignored")
		return
	}

	cmd := strings.TrimPrefix(strings.TrimSpace(p.Command), "/")
	log.Info().Str("room", sess.Room).Str("user", current.Name).Str("command", cmd).Msg("received command")

	switch {
	case strings.HasPrefix(cmd, "ready"):
		o.commandReady(ctx, sess, current, other)
	case strings.HasPrefix(cmd, "done"):
		o.commandDone(ctx, sess, current, other)
	case isNoReply(cmd):
		o.tell(ctx, sess.Room, current.ID, waitForAnswerMsg)
	default:
		o.tell(ctx, sess.Room, current.ID, unknownCommandMsg)
	}

	o.checkInvariants(sess)
}

func (o *Orchestrator) commandReady(ctx context.Context, sess *session.Session, current, other session.Player) {
	room := sess.Room

	if sess.IsReady(current.ID) {
		o.after(ctx, o.cfg.Pacing.Ack, func(ctx context.Context) { o.tell(ctx, room, current.ID, alreadyReadyMsg) })
		return
	}

	sess.MarkReady(current.ID)
	sess.Timers.Cancel(timers.ReadyReminder)

	if !sess.BothReady() {
		o.after(ctx, o.cfg.Pacing.Ack, func(ctx context.Context) { o.tell(ctx, room, current.ID, waitPartnerMsg) })
		o.armPartnerReminder(sess, other)
		return
	}

	log.Info().Str("room", room).Msg("both players ready, starting game")
	sess.Phase = session.InRound
	o.say(ctx, room, gameBeginsMsg)
	o.present(ctx, sess, nil)
	o.armRoundDeadline(sess)
}

func (o *Orchestrator) commandDone(ctx context.Context, sess *session.Session, current, other session.Player) {
	room := sess.Room

	switch {
	case !sess.BothReady():
		o.tell(ctx, room, current.ID, notStartedMsg)
		return
	case sess.MessageCount() < o.cfg.MinMessages:
		o.tell(ctx, room, current.ID, discussMoreMsg)
		return
	case sess.IsDone(current.ID):
		o.after(ctx, o.cfg.Pacing.Ack, func(ctx context.Context) { o.tellHTML(ctx, room, current.ID, alreadyDoneMsg) })
		return
	}

	if sess.MarkDone(current.ID) < 2 {
		sess.Phase = session.AwaitingDone
		o.armDoneGrace(sess, current)
		o.tellHTML(ctx, room, current.ID, waitDoneMsg)
		o.tellHTML(ctx, room, other.ID, partnerDoneMsg)
		return
	}

	sess.Timers.Cancel(timers.DoneGrace)
	remaining := sess.PopPair()
	log.Info().Str("room", room).Int("remaining", remaining).Msg("round finished")

	if remaining == 0 {
		o.complete(ctx, sess)
		return
	}

	o.say(ctx, room, fmt.Sprintf(nextImageMsg, remaining))
	sess.ResetRound()
	sess.Phase = session.InRound
	o.armRoundDeadline(sess)
	o.present(ctx, sess, nil)
}
