package orchestrator

import (
	"context"
	"time"

	"github.com/mcdev12/dito/go/internal/dito/session"
	"github.com/mcdev12/dito/go/internal/dito/timers"
	"github.com/rs/zerolog/log"
)

const (
	readyReminderMsg = "Are you ready? Please type **/ready** to begin the game."
	partnerReadyMsg  = "Your partner is ready. Please, type /ready!"
	roundDeadlineMsg = "You both seem to be having a discussion for a long time. " +
		"Could you reach an agreement and provide an answer?"
	notDoneMsg = "Your partner seems to still want to discuss some more. " +
		"Send /done again once you two are really finished."
	gameEndedAwayMsg = "The game ended because you were gone for too long!"
	partnerAwayMsg   = "Your partner seems to be away for a long time!"
)

// arm schedules action in slot of sess. The action runs with the session
// locked and only if the session is still live and the slot still holds this
// very timer, so a canceled or replaced timer never touches the room. The
// caller must hold the session lock.
func (o *Orchestrator) arm(sess *session.Session, slot timers.Slot, delay time.Duration, action func(ctx context.Context)) {
	sess.Timers.Schedule(slot, delay, func(h *timers.Handle) {
		sess.Lock()
		defer sess.Unlock()

		if !sess.Live() || !sess.Timers.Owns(slot, h) {
			log.Debug().Str("room", sess.Room).Stringer("slot", slot).Msg("dropping stale timer")
			return
		}
		sess.Timers.Release(slot, h)

		log.Info().Str("room", sess.Room).Stringer("slot", slot).Msg("timer fired")
		action(context.Background())
		o.checkInvariants(sess)
	})
}

func (o *Orchestrator) armReadyReminder(sess *session.Session) {
	o.arm(sess, timers.ReadyReminder, o.cfg.ReadyDelay, func(ctx context.Context) {
		o.sayHTML(ctx, sess.Room, readyReminderMsg)
	})
}

// armPartnerReminder nudges the player who has not typed /ready yet.
func (o *Orchestrator) armPartnerReminder(sess *session.Session, other session.Player) {
	o.arm(sess, timers.ReadyReminder, o.cfg.ReadyDelay/2, func(ctx context.Context) {
		o.tell(ctx, sess.Room, other.ID, partnerReadyMsg)
	})
}

func (o *Orchestrator) armRoundDeadline(sess *session.Session) {
	o.arm(sess, timers.RoundDeadline, o.cfg.GameDelay, func(ctx context.Context) {
		o.say(ctx, sess.Room, roundDeadlineMsg)
	})
}

// armDoneGrace withdraws a one-sided /done of sender unless the partner
// agrees in time.
func (o *Orchestrator) armDoneGrace(sess *session.Session, sender session.Player) {
	o.arm(sess, timers.DoneGrace, o.cfg.DoneGrace, func(ctx context.Context) {
		sess.ClearDone()
		sess.Phase = session.InRound
		o.tell(ctx, sess.Room, sender.ID, notDoneMsg)
	})
}

// armAnswerTimeout ends the game if nobody answers speaker in time.
func (o *Orchestrator) armAnswerTimeout(sess *session.Session, speaker session.Player) {
	o.arm(sess, timers.AnswerTimeout, o.cfg.AnswerDelay, func(ctx context.Context) {
		o.noReply(ctx, sess, speaker)
	})
}

// noReply ends the game because the partner of speaker went quiet. Only
// speaker gets a code.
func (o *Orchestrator) noReply(ctx context.Context, sess *session.Session, speaker session.Player) {
	_, other, ok := sess.Participants(speaker.ID)
	if !ok {
		return
	}

	log.Info().Str("room", sess.Room).Int("user_id", speaker.ID).Msg("no reply, ending the game")

	o.tell(ctx, sess.Room, other.ID, gameEndedAwayMsg)
	o.tell(ctx, sess.Room, speaker.ID, partnerAwayMsg)
	o.confirmationCode(ctx, sess.Room, statusNoReply, &speaker.ID)
	o.closeGame(ctx, sess)
}
