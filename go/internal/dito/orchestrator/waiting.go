package orchestrator

import (
	"context"

	"github.com/mcdev12/dito/go/internal/dito/events"
	"github.com/mcdev12/dito/go/internal/dito/timers"
	"github.com/rs/zerolog/log"
)

const (
	noPartnerMsg      = "Unfortunately we could not find a partner for you!"
	waitMoreMsg       = "You may also wait some more :)"
	noFurtherPayMsg   = "You won't be remunerated for further waiting time."
	checkBackLaterMsg = "Please check back at another time of the day."
)

// startWaiting starts the matchmaking timer for a user alone in the waiting
// room. Only one user waits at a time; a running timer is left alone.
func (o *Orchestrator) startWaiting(userID int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.waiting.Pending() {
		return
	}
	log.Info().Int("user_id", userID).Msg("user has to wait for a partner")
	o.armWaiting(userID)
}

// stopWaiting cancels the matchmaking timer.
func (o *Orchestrator) stopWaiting() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.waiting.Cancel()
	o.waiting = nil
}

// matched stops the wait of users who were just paired and makes them
// eligible for a new waiting code.
func (o *Orchestrator) matched(users []events.User) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.waiting.Cancel()
	o.waiting = nil
	for _, u := range users {
		delete(o.tokens, u.ID)
	}
}

// armWaiting must be called with o.mu held.
func (o *Orchestrator) armWaiting(userID int) {
	var h *timers.Handle
	h = o.sched.Schedule(o.cfg.WaitingDelay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()

		if o.waiting != h || h.Canceled() {
			return
		}
		o.waiting = nil
		o.noPartner(context.Background(), userID)
	})
	o.waiting = h
	o.waitingUser = userID
}

// noPartner compensates a user who waited in vain. The first time they get a
// code and the wait starts over; afterwards they are only told that further
// waiting is unpaid. Must be called with o.mu held.
func (o *Orchestrator) noPartner(ctx context.Context, userID int) {
	room := o.cfg.WaitingRoom

	if _, ok := o.tokens[userID]; ok {
		log.Info().Int("user_id", userID).Msg("user keeps waiting without compensation")
		o.tell(ctx, room, userID, noFurtherPayMsg)
		o.after(ctx, o.cfg.Pacing.WaitFollowUp, func(ctx context.Context) {
			o.tell(ctx, room, userID, checkBackLaterMsg)
		})
		return
	}

	log.Info().Int("user_id", userID).Msg("no partner found")
	o.tell(ctx, room, userID, noPartnerMsg)
	o.confirmationCode(ctx, room, statusNoPartner, events.Receiver(userID))
	o.after(ctx, o.cfg.Pacing.WaitMore, func(ctx context.Context) {
		o.tell(ctx, room, userID, waitMoreMsg)
	})

	o.tokens[userID] = struct{}{}
	o.armWaiting(userID)
}

// Waiting reports the user the matchmaking timer is running for.
func (o *Orchestrator) Waiting() (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.waiting.Pending() {
		return 0, false
	}
	return o.waitingUser, true
}
