package events

import (
	"time"

	"github.com/mcdev12/staffdraft/go/internal/models"
)

// Outbox event types. They double as the JetStream subject suffix.
const (
	EventDraftStarted       = "draft.started"
	EventAssignmentRecorded = "assignment.recorded"
	EventProjectRoster      = "project.roster"
	EventDraftEnded         = "draft.ended"
)

// DraftStartedEvent is written to the sync sink when a draft starts.
type DraftStartedEvent struct {
	DraftID   string    `json:"draft_id"`
	Order     []string  `json:"order"`
	PoolSize  int       `json:"pool_size"`
	StartedAt time.Time `json:"started_at"`
}

// AssignmentRecordedEvent is written for every successful claim.
type AssignmentRecordedEvent struct {
	models.Assignment
	ConsultantName  string `json:"consultant_name"`
	ParticipantName string `json:"participant_name"`
	ProjectName     string `json:"project_name"`
}

// ProjectRosterEvent is the full roster of one project after a claim,
// grouped by bucket.
type ProjectRosterEvent struct {
	DraftID   string                       `json:"draft_id"`
	OwnerID   string                       `json:"owner_id"`
	ProjectID string                       `json:"project_id"`
	Buckets   map[models.Category][]string `json:"buckets"`
}

// DraftEndedEvent is written when a draft ends.
type DraftEndedEvent struct {
	DraftID     string              `json:"draft_id"`
	Reason      string              `json:"reason"`
	EndedAt     time.Time           `json:"ended_at"`
	Assignments []models.Assignment `json:"assignments"`
}
