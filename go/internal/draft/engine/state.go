package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/staffdraft/go/internal/catalog"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
	"github.com/mcdev12/staffdraft/go/internal/models"
)

// Status is the draft lifecycle state.
type Status int

const (
	StatusIdle Status = iota
	StatusStarted
	StatusEnding
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarted:
		return "started"
	case StatusEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// Presence tells whether a seat has a live connection and, if not, how the
// seat is being preserved.
type Presence int

const (
	PresenceActive Presence = iota
	PresenceGracePeriod
	PresenceSeatHeld
)

func (p Presence) String() string {
	switch p {
	case PresenceActive:
		return "active"
	case PresenceGracePeriod:
		return "grace_period"
	case PresenceSeatHeld:
		return "seat_held"
	default:
		return "unknown"
	}
}

// Direction is the travel direction of the turn pointer.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Seat is one participant's slot in the roster. Index equals the seat's
// position in State.seats and is renumbered only when a seat is removed.
type Seat struct {
	ParticipantID  string
	Name           string
	ConnID         string // empty while disconnected
	Index          int
	Presence       Presence
	DisconnectedAt time.Time

	grace    clockwork.Timer
	graceGen uint64
}

func (s *Seat) view() events.SeatView {
	return events.SeatView{
		ParticipantID: s.ParticipantID,
		Name:          s.Name,
		Index:         s.Index,
		Presence:      s.Presence.String(),
		Connected:     s.ConnID != "",
	}
}

// State is the draft state shared by the engine components. Every component
// receives the same *State; mu guards all fields. Exported component methods
// take the lock, methods with a Locked suffix expect it to be held.
type State struct {
	mu sync.Mutex

	status  Status
	epoch   uint64 // bumped on every start and every end
	draftID uuid.UUID

	seats []*Seat

	current          int
	direction        Direction
	bonusConsumed    bool
	firstAdvance     bool
	pendingTurnOwner string

	catalog     *catalog.Snapshot
	claimed     map[string]struct{}
	remaining   int
	assignments []models.Assignment
	startedAt   time.Time
}

// NewState returns an idle, empty draft state.
func NewState() *State {
	return &State{direction: Forward, claimed: make(map[string]struct{})}
}

func (s *State) seatByParticipantLocked(participantID string) *Seat {
	for _, seat := range s.seats {
		if seat.ParticipantID == participantID {
			return seat
		}
	}
	return nil
}

func (s *State) seatByConnLocked(connID string) *Seat {
	if connID == "" {
		return nil
	}
	for _, seat := range s.seats {
		if seat.ConnID == connID {
			return seat
		}
	}
	return nil
}

func (s *State) holderLocked() *Seat {
	if s.status == StatusIdle || s.current < 0 || s.current >= len(s.seats) {
		return nil
	}
	return s.seats[s.current]
}

// removeSeatLocked drops the seat at idx and renumbers the seats after it.
func (s *State) removeSeatLocked(idx int) {
	s.seats = append(s.seats[:idx], s.seats[idx+1:]...)
	for i := idx; i < len(s.seats); i++ {
		s.seats[i].Index = i
	}
}

func (s *State) rosterLocked() []events.SeatView {
	views := make([]events.SeatView, len(s.seats))
	for i, seat := range s.seats {
		views[i] = seat.view()
	}
	return views
}

func (s *State) poolLocked() []models.Consultant {
	if s.catalog == nil {
		return nil
	}
	pool := make([]models.Consultant, 0, s.remaining)
	for _, c := range s.catalog.Consultants() {
		if _, taken := s.claimed[c.ID]; !taken {
			pool = append(pool, c)
		}
	}
	return pool
}

func (s *State) snapshotLocked() events.DraftSnapshot {
	snap := events.DraftSnapshot{
		Status:    s.status.String(),
		Seats:     s.rosterLocked(),
		Remaining: s.remaining,
	}
	if s.status == StatusIdle {
		return snap
	}

	snap.DraftID = s.draftID.String()
	snap.Direction = s.direction.String()
	snap.Pick = len(s.assignments) + 1
	if holder := s.holderLocked(); holder != nil {
		snap.TurnHolder = holder.ParticipantID
	}
	snap.Pool = s.poolLocked()
	snap.Assignments = append([]models.Assignment(nil), s.assignments...)
	if s.catalog != nil {
		snap.Projects = make(map[string][]models.Project, len(s.seats))
		for _, seat := range s.seats {
			snap.Projects[seat.ParticipantID] = s.catalog.ProjectsFor(seat.ParticipantID)
		}
	}
	return snap
}

// resetLocked returns the state to an empty lobby. The epoch is kept.
func (s *State) resetLocked() {
	s.status = StatusIdle
	s.draftID = uuid.Nil
	s.seats = nil
	s.current = 0
	s.direction = Forward
	s.bonusConsumed = false
	s.firstAdvance = false
	s.pendingTurnOwner = ""
	s.catalog = nil
	s.claimed = make(map[string]struct{})
	s.remaining = 0
	s.assignments = nil
	s.startedAt = time.Time{}
}
