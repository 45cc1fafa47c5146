package models

import (
	"time"

	"github.com/google/uuid"
)

// Assignment records a successful claim: a consultant placed into a bucket of
// one of the claiming participant's projects.
type Assignment struct {
	DraftID       uuid.UUID `json:"draft_id"`
	Pick          int       `json:"pick"` // 1-based overall pick number
	ParticipantID string    `json:"participant_id"`
	ConsultantID  string    `json:"consultant_id"`
	ProjectID     string    `json:"project_id"`
	Bucket        Category  `json:"bucket"`
	AssignedAt    time.Time `json:"assigned_at"`
}
