package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/staffdraft/go/internal/catalog"
	"github.com/mcdev12/staffdraft/go/internal/draft/events"
)

const insertAssignment = `
INSERT INTO assignment_history
    (draft_id, pick, participant_id, consultant_id, project_id, bucket, assigned_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (draft_id, consultant_id) DO NOTHING`

// HistoryPublisher records assignments in the catalog database so a later
// draft loads a pool without them. Other event types are ignored.
type HistoryPublisher struct {
	db catalog.Execer
}

// NewHistoryPublisher creates a publisher writing assignments to db.
func NewHistoryPublisher(db catalog.Execer) *HistoryPublisher {
	return &HistoryPublisher{db: db}
}

// Publish inserts assignment events and ignores every other type.
func (p *HistoryPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	if event.EventType != events.EventAssignmentRecorded {
		return nil
	}

	var rec events.AssignmentRecordedEvent
	if err := json.Unmarshal(event.Payload, &rec); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}

	a := rec.Assignment
	if _, err := p.db.Exec(ctx, insertAssignment,
		a.DraftID, a.Pick, a.ParticipantID, a.ConsultantID, a.ProjectID, string(a.Bucket), a.AssignedAt,
	); err != nil {
		return fmt.Errorf("insert assignment %s: %w", a.ConsultantID, err)
	}
	return nil
}
