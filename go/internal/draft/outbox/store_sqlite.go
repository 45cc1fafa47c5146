package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/staffdraft/go/internal/sqlutil"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS outbox_events (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    draft_id   TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload    BLOB NOT NULL,
    created_at INTEGER NOT NULL
);`

// SQLiteStore spools events to a local SQLite file so that events queued
// while the sink is unreachable survive a process restart.
type SQLiteStore struct {
	db       *sql.DB
	capacity int
}

// OpenSQLiteStore opens (or creates) the spool at path.
func OpenSQLiteStore(ctx context.Context, path string, capacity int) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply outbox schema: %w", err)
	}
	return &SQLiteStore{db: db, capacity: capacity}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, event OutboxEvent) error {
	return sqlutil.Run(ctx, s.db, nil, func(tx *sql.Tx) error {
		if s.capacity > 0 {
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events`).Scan(&n); err != nil {
				return fmt.Errorf("count outbox: %w", err)
			}
			if n >= s.capacity {
				return ErrOutboxFull
			}
		}
		_, err := tx.ExecContext(ctx, `
            INSERT INTO outbox_events (id, draft_id, event_type, payload, created_at)
            VALUES (?, ?, ?, ?, ?)
        `, event.ID.String(), event.DraftID.String(), event.EventType, []byte(event.Payload), event.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) Pending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, draft_id, event_type, payload, created_at
        FROM outbox_events
        ORDER BY seq
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var (
			e           OutboxEvent
			id, draftID string
			payload     []byte
			createdAt   int64
		)
		if err := rows.Scan(&id, &draftID, &e.EventType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		if e.DraftID, err = uuid.Parse(draftID); err != nil {
			return nil, fmt.Errorf("parse draft id: %w", err)
		}
		e.Payload = payload
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ack(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox_events WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("ack outbox event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}
