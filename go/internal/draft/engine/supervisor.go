package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Supervisor handles participants losing and regaining their connection,
// leaving, and being kicked.
type Supervisor struct {
	state     *State
	rotation  *Rotation
	lifecycle *Lifecycle
	notifier  Notifier
	metrics   Metrics
	clock     clockwork.Clock
	grace     time.Duration
}

// NewSupervisor creates a supervisor that keeps lobby seats for grace after
// a disconnect.
func NewSupervisor(state *State, rotation *Rotation, lifecycle *Lifecycle, notifier Notifier, metrics Metrics, clock clockwork.Clock, grace time.Duration) *Supervisor {
	return &Supervisor{
		state:     state,
		rotation:  rotation,
		lifecycle: lifecycle,
		notifier:  notifier,
		metrics:   metrics,
		clock:     clock,
		grace:     grace,
	}
}

// Disconnect reacts to a transport-level close of connID. Unknown
// connections are ignored.
func (sv *Supervisor) Disconnect(connID string) {
	s := sv.state
	s.mu.Lock()
	defer s.mu.Unlock()

	seat := s.seatByConnLocked(connID)
	if seat == nil {
		return
	}
	sv.detachLocked(seat)
	announceRosterLocked(s, sv.notifier, sv.metrics)
}

// Leave is an explicit departure. Before the draft starts the seat is
// dropped at once; during a draft it is held like a disconnect. The
// connection itself stays open.
func (sv *Supervisor) Leave(connID string) error {
	s := sv.state
	s.mu.Lock()
	defer s.mu.Unlock()

	seat := s.seatByConnLocked(connID)
	if seat == nil {
		return ErrNotRegistered
	}

	if s.status == StatusIdle {
		stopGraceLocked(seat)
		s.removeSeatLocked(seat.Index)
		log.Info().Str("participant_id", seat.ParticipantID).Msg("participant left lobby")
	} else {
		sv.detachLocked(seat)
		log.Info().Str("participant_id", seat.ParticipantID).Msg("participant left draft, seat held")
	}
	announceRosterLocked(s, sv.notifier, sv.metrics)
	return nil
}

// detachLocked clears the seat's connection. In the lobby the seat gets a
// grace window; once the draft has started it is held with no expiry.
func (sv *Supervisor) detachLocked(seat *Seat) {
	s := sv.state
	seat.ConnID = ""
	seat.DisconnectedAt = sv.clock.Now()

	if s.status == StatusIdle {
		seat.Presence = PresenceGracePeriod
		sv.armGraceLocked(seat)
		log.Info().
			Str("participant_id", seat.ParticipantID).
			Dur("grace", sv.grace).
			Msg("participant disconnected, grace period started")
		return
	}

	seat.Presence = PresenceSeatHeld
	if s.status == StatusStarted && s.current == seat.Index {
		s.pendingTurnOwner = seat.ParticipantID
	}
	log.Info().
		Str("participant_id", seat.ParticipantID).
		Int("seat", seat.Index).
		Bool("held_turn", s.pendingTurnOwner == seat.ParticipantID).
		Msg("participant disconnected, seat held")
}

func (sv *Supervisor) armGraceLocked(seat *Seat) {
	stopGraceLocked(seat)
	seat.graceGen++
	gen := seat.graceGen
	participantID := seat.ParticipantID
	seat.grace = sv.clock.AfterFunc(sv.grace, func() {
		sv.expire(participantID, gen)
	})
}

// expire removes a lobby seat whose grace window ran out. It is a no-op if
// the participant rejoined, was removed, or the draft started meanwhile.
func (sv *Supervisor) expire(participantID string, gen uint64) {
	s := sv.state
	s.mu.Lock()
	defer s.mu.Unlock()

	seat := s.seatByParticipantLocked(participantID)
	if seat == nil || seat.graceGen != gen || seat.Presence != PresenceGracePeriod || s.status != StatusIdle {
		return
	}

	seat.grace = nil
	s.removeSeatLocked(seat.Index)
	log.Info().Str("participant_id", participantID).Msg("grace period expired, seat removed")
	announceRosterLocked(s, sv.notifier, sv.metrics)
}

// rejoinLocked binds connID to an existing seat. If the participant held the
// turn when they dropped, the turn is restored to them.
func (sv *Supervisor) rejoinLocked(seat *Seat, connID string) {
	s := sv.state
	stopGraceLocked(seat)
	seat.ConnID = connID
	seat.Presence = PresenceActive
	seat.DisconnectedAt = time.Time{}

	if s.status != StatusStarted {
		return
	}
	if s.pendingTurnOwner == seat.ParticipantID {
		s.current = seat.Index
		s.pendingTurnOwner = ""
	}
	if s.current == seat.Index {
		sv.rotation.notifyHolderLocked()
	}
}

// Kick removes a seat regardless of its presence and closes its connection.
func (sv *Supervisor) Kick(participantID string) error {
	s := sv.state
	s.mu.Lock()
	defer s.mu.Unlock()

	seat := s.seatByParticipantLocked(participantID)
	if seat == nil {
		return ErrUnknownParticipant
	}

	idx := seat.Index
	stopGraceLocked(seat)
	s.removeSeatLocked(idx)
	if seat.ConnID != "" {
		sv.notifier.Disconnect(seat.ConnID)
	}
	if s.pendingTurnOwner == participantID {
		s.pendingTurnOwner = ""
	}

	log.Info().
		Str("participant_id", participantID).
		Int("seat", idx).
		Str("status", s.status.String()).
		Msg("participant kicked")

	announceRosterLocked(s, sv.notifier, sv.metrics)

	if s.status != StatusStarted {
		return nil
	}
	switch {
	case len(s.seats) == 0:
		sv.lifecycle.endAsyncLocked("no participants left")
	case idx == s.current:
		sv.rotation.handOffLocked(idx)
	case idx < s.current:
		s.current--
		sv.rotation.realignLocked(true)
	default:
		sv.rotation.realignLocked(false)
	}
	return nil
}

// Sweep reclassifies seats marked active whose connection the transport no
// longer knows about. It returns the number of seats changed.
func (sv *Supervisor) Sweep(alive func(connID string) bool) int {
	s := sv.state
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, seat := range s.seats {
		if seat.Presence != PresenceActive || alive(seat.ConnID) {
			continue
		}
		log.Warn().
			Str("participant_id", seat.ParticipantID).
			Str("connection_id", seat.ConnID).
			Msg("sweep found dead connection")
		sv.detachLocked(seat)
		changed++
	}
	if changed > 0 {
		announceRosterLocked(s, sv.notifier, sv.metrics)
	}
	return changed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (sv *Supervisor) RunSweeper(ctx context.Context, interval time.Duration, alive func(connID string) bool) {
	if interval <= 0 || alive == nil {
		return
	}
	ticker := sv.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			sv.Sweep(alive)
		}
	}
}

func stopGraceLocked(seat *Seat) {
	if seat.grace != nil {
		seat.grace.Stop()
		seat.grace = nil
	}
	seat.graceGen++
}
