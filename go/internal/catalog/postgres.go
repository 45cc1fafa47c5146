package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mcdev12/staffdraft/go/internal/models"
	"github.com/mcdev12/staffdraft/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const (
	selectParticipants = `SELECT id, name, email FROM participants ORDER BY id`

	// Consultants already placed by an earlier draft are not claimable again.
	selectPool = `
        SELECT c.id, c.name, c.email, c.major, c.year, c.role, c.attributes
        FROM consultants c
        WHERE NOT EXISTS (
            SELECT 1 FROM assignment_history h WHERE h.consultant_id = c.id
        )
        ORDER BY c.id`

	selectProjects = `SELECT id, owner_id, name, description, accepts FROM projects ORDER BY owner_id, id`

	selectParticipant = `SELECT id, name, email FROM participants WHERE id = $1`
)

// PostgresSource reads the catalog from Postgres through lib/pq.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a catalog source backed by the catalog tables.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Load reads participants, the remaining pool and projects inside one
// read-only transaction so the three reads agree with each other.
func (s *PostgresSource) Load(ctx context.Context) (*Snapshot, error) {
	var (
		participants []models.Participant
		consultants  []models.Consultant
		projects     []models.Project
	)

	opts := &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}
	err := sqlutil.Run(ctx, s.db, opts, func(tx *sql.Tx) error {
		var err error
		if participants, err = queryParticipants(ctx, tx); err != nil {
			return err
		}
		if consultants, err = queryPool(ctx, tx); err != nil {
			return err
		}
		projects, err = queryProjects(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	return NewSnapshot(participants, consultants, projects)
}

// LookupParticipant reads a single participant row.
func (s *PostgresSource) LookupParticipant(ctx context.Context, id string) (models.Participant, error) {
	var (
		p     models.Participant
		email sql.NullString
	)
	err := s.db.QueryRowContext(ctx, selectParticipant, id).Scan(&p.ID, &p.Name, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, ErrParticipantNotFound
	}
	if err != nil {
		return models.Participant{}, fmt.Errorf("lookup participant: %w", err)
	}
	p.Email = sqlutil.FromSqlString(email, "")
	return p, nil
}

func queryParticipants(ctx context.Context, tx *sql.Tx) ([]models.Participant, error) {
	rows, err := tx.QueryContext(ctx, selectParticipants)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var (
			p     models.Participant
			email sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &email); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.Email = sqlutil.FromSqlString(email, "")
		out = append(out, p)
	}
	return out, rows.Err()
}

func queryPool(ctx context.Context, tx *sql.Tx) ([]models.Consultant, error) {
	rows, err := tx.QueryContext(ctx, selectPool)
	if err != nil {
		return nil, fmt.Errorf("query consultants: %w", err)
	}
	defer rows.Close()

	var out []models.Consultant
	for rows.Next() {
		var (
			c                  models.Consultant
			role               string
			email, major, year sql.NullString
			attrs              pqtype.NullRawMessage
		)
		if err := rows.Scan(&c.ID, &c.Name, &email, &major, &year, &role, &attrs); err != nil {
			return nil, fmt.Errorf("scan consultant: %w", err)
		}
		c.Email = sqlutil.FromSqlString(email, "")
		c.Major = sqlutil.FromSqlString(major, "")
		c.Year = sqlutil.FromSqlString(year, "")
		c.Role = models.Category(role)
		if attrs.Valid {
			c.Attributes = attrs.RawMessage
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func queryProjects(ctx context.Context, tx *sql.Tx) ([]models.Project, error) {
	rows, err := tx.QueryContext(ctx, selectProjects)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var (
			p           models.Project
			description sql.NullString
			accepts     []string
		)
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &description, pq.Array(&accepts)); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Description = sqlutil.FromSqlString(description, "")
		for _, a := range accepts {
			p.Accepts = append(p.Accepts, models.Category(a))
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
