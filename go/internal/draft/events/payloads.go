package events

import (
	"time"

	"github.com/mcdev12/staffdraft/go/internal/models"
)

// Payload types shared between the engine, the gateway and the outbox.

// SeatView is the public view of one seat.
type SeatView struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Index         int    `json:"index"`
	Presence      string `json:"presence"`
	Connected     bool   `json:"connected"`
}

// DraftSnapshot is the full draft state sent to rejoining participants and
// served by the state endpoint.
type DraftSnapshot struct {
	Status      string                      `json:"status"`
	DraftID     string                      `json:"draft_id,omitempty"`
	Seats       []SeatView                  `json:"seats"`
	TurnHolder  string                      `json:"turn_holder,omitempty"`
	Direction   string                      `json:"direction,omitempty"`
	Pick        int                         `json:"pick,omitempty"`
	Remaining   int                         `json:"remaining"`
	Pool        []models.Consultant         `json:"pool,omitempty"`
	Projects    map[string][]models.Project `json:"projects,omitempty"`
	Assignments []models.Assignment         `json:"assignments,omitempty"`
}

// RegistrationResultPayload answers a register request.
type RegistrationResultPayload struct {
	Accepted bool           `json:"accepted"`
	Reason   string         `json:"reason,omitempty"`
	Rejoined bool           `json:"rejoined,omitempty"`
	Seat     *SeatView      `json:"seat,omitempty"`
	Snapshot *DraftSnapshot `json:"snapshot,omitempty"`
}

// RosterUpdatePayload lists every seat after a roster change.
type RosterUpdatePayload struct {
	Seats []SeatView `json:"seats"`
}

// DraftStartedPayload announces the shuffled turn order.
type DraftStartedPayload struct {
	DraftID   string     `json:"draft_id"`
	Order     []SeatView `json:"order"`
	PoolSize  int        `json:"pool_size"`
	StartedAt time.Time  `json:"started_at"`
}

// TurnUpdatePayload names the participant who may claim next.
type TurnUpdatePayload struct {
	ParticipantID string `json:"participant_id"`
	SeatIndex     int    `json:"seat_index"`
	Pick          int    `json:"pick"`
	Direction     string `json:"direction"`
	BonusTurn     bool   `json:"bonus_turn,omitempty"`
}

// ClaimAppliedPayload describes a successful claim.
type ClaimAppliedPayload struct {
	ParticipantID  string          `json:"participant_id"`
	ConsultantID   string          `json:"consultant_id"`
	ConsultantName string          `json:"consultant_name"`
	ProjectID      string          `json:"project_id"`
	Bucket         models.Category `json:"bucket"`
	Pick           int             `json:"pick"`
	Remaining      int             `json:"remaining"`
}

// PoolSnapshotPayload lists the consultants that can still be claimed.
type PoolSnapshotPayload struct {
	Available []models.Consultant `json:"available"`
	Remaining int                 `json:"remaining"`
}

// DraftEndingPayload is sent when claims are closed.
type DraftEndingPayload struct {
	DraftID string `json:"draft_id"`
	Reason  string `json:"reason"`
}

// DraftEndedPayload is sent once end-of-draft side effects are done and the
// engine is back to idle.
type DraftEndedPayload struct {
	DraftID     string `json:"draft_id"`
	Assignments int    `json:"assignments"`
	Synced      bool   `json:"synced"`
}

// ErrorPayload carries a rejection reason for a single inbound message.
type ErrorPayload struct {
	Reason  string `json:"reason"`
	Request string `json:"request,omitempty"`
}
