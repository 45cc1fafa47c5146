package engine

import (
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

// Rotation owns the snake-order turn pointer. The seat at either end of the
// line gets two consecutive turns, except that the very first turn of the
// draft at seat 0 is not doubled.
type Rotation struct {
	state    *State
	notifier Notifier
	metrics  Metrics
}

// NewRotation creates a rotation over the seats in state.
func NewRotation(state *State, notifier Notifier, metrics Metrics) *Rotation {
	return &Rotation{state: state, notifier: notifier, metrics: metrics}
}

// beginLocked puts the turn on seat 0 of a freshly ordered roster.
func (r *Rotation) beginLocked() {
	s := r.state
	s.current = 0
	s.direction = Forward
	s.firstAdvance = true
	s.bonusConsumed = false
	s.pendingTurnOwner = ""
	r.notifyHolderLocked()
}

// bonusDueLocked reports whether the holder is at a boundary and has not yet
// used the extra turn for this visit.
func (r *Rotation) bonusDueLocked() bool {
	s := r.state
	n := len(s.seats)
	if n <= 1 || s.bonusConsumed {
		return false
	}
	atFirst := s.current == 0
	atLast := s.current == n-1
	return atLast || (atFirst && !s.firstAdvance)
}

// stepLocked applies one Advance without notifying anyone. A roster of one
// keeps the turn on its only seat.
func (r *Rotation) stepLocked() {
	s := r.state
	n := len(s.seats)
	if n <= 1 {
		s.current = 0
		return
	}

	if r.bonusDueLocked() {
		s.bonusConsumed = true
		return
	}

	s.bonusConsumed = false
	s.firstAdvance = false
	s.current = r.clampLocked(s.current + int(s.direction))
}

// clampLocked bounds idx to the roster and flips direction when an end of
// the line is reached.
func (r *Rotation) clampLocked(idx int) int {
	s := r.state
	last := len(s.seats) - 1
	switch {
	case idx >= last:
		s.direction = Backward
		return last
	case idx <= 0:
		s.direction = Forward
		return 0
	default:
		return idx
	}
}

// advanceLocked moves play on after a claim.
func (r *Rotation) advanceLocked() {
	r.stepLocked()
	r.metrics.TurnAdvanced()
	r.notifyHolderLocked()
}

// deferLocked gives up the current turn. A holder owed a boundary bonus
// forfeits it too, so deferring never hands back a repeat turn.
func (r *Rotation) deferLocked() {
	if r.bonusDueLocked() {
		r.stepLocked()
	}
	r.stepLocked()
	r.metrics.TurnAdvanced()
	r.notifyHolderLocked()
}

// handOffLocked moves the turn after the holder at removedIdx has been
// removed from the roster: play continues with the seat that would have
// followed in the current direction.
func (r *Rotation) handOffLocked(removedIdx int) {
	s := r.state
	if len(s.seats) == 0 {
		return
	}

	next := removedIdx
	if s.direction == Backward {
		next = removedIdx - 1
	}
	s.bonusConsumed = false
	s.firstAdvance = false
	if len(s.seats) == 1 {
		s.current = 0
	} else {
		s.current = r.clampLocked(next)
	}
	r.metrics.TurnAdvanced()
	r.notifyHolderLocked()
}

// realignLocked repairs the pointer after a seat other than the holder was
// removed. A holder left at an end of the line must face back into it, and a
// holder shifted onto seat 0 mid-pass has not arrived at a boundary.
func (r *Rotation) realignLocked(shiftedToHead bool) {
	s := r.state
	n := len(s.seats)
	if n <= 1 {
		s.current = 0
		return
	}

	switch {
	case s.current == n-1 && s.direction == Forward:
		s.direction = Backward
	case s.current == 0 && s.direction == Backward:
		s.direction = Forward
	case s.current == 0 && shiftedToHead:
		s.bonusConsumed = true
	}
}

// notifyHolderLocked announces the holder, but only while that seat is
// connected. A disconnected holder stalls visible play until they rejoin or
// are kicked.
func (r *Rotation) notifyHolderLocked() {
	s := r.state
	holder := s.holderLocked()
	if holder == nil {
		return
	}

	log.Debug().
		Str("participant_id", holder.ParticipantID).
		Int("seat", holder.Index).
		Str("direction", s.direction.String()).
		Bool("bonus", s.bonusConsumed).
		Msg("turn holder")

	if holder.Presence != PresenceActive {
		return
	}
	r.notifier.Broadcast(events.NewMessage(events.MessageTurnUpdate, events.TurnUpdatePayload{
		ParticipantID: holder.ParticipantID,
		SeatIndex:     holder.Index,
		Pick:          len(s.assignments) + 1,
		Direction:     s.direction.String(),
		BonusTurn:     s.bonusConsumed,
	}))
}
