package catalog

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sqlc-dev/pqtype"
)

//go:embed schema.sql
var Schema string

// Execer is the subset of *pgxpool.Pool the seeder needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// SeedResult counts rows written per table.
type SeedResult struct {
	Table    string
	Total    int
	Inserted int
	Skipped  int
	Errors   int
}

func (r SeedResult) String() string {
	return fmt.Sprintf("%s seed: total=%d inserted=%d skipped=%d errors=%d",
		r.Table, r.Total, r.Inserted, r.Skipped, r.Errors)
}

// Seed creates the catalog schema and inserts the contents of a catalog
// file. Existing rows are left untouched.
func Seed(ctx context.Context, db Execer, f *File) ([]SeedResult, error) {
	if _, err := NewSnapshot(f.Participants, f.Consultants, f.Projects); err != nil {
		return nil, err
	}
	if _, err := db.Exec(ctx, Schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	results := make([]SeedResult, 0, 3)

	res := SeedResult{Table: "participants", Total: len(f.Participants)}
	for _, p := range f.Participants {
		tag, err := db.Exec(ctx, `
            INSERT INTO participants (id, name, email)
            VALUES ($1, $2, NULLIF($3, ''))
            ON CONFLICT (id) DO NOTHING
        `, p.ID, p.Name, p.Email)
		res.count(tag, err)
	}
	results = append(results, res)

	res = SeedResult{Table: "consultants", Total: len(f.Consultants)}
	for _, c := range f.Consultants {
		attrs := pqtype.NullRawMessage{RawMessage: c.Attributes, Valid: len(c.Attributes) > 0}
		tag, err := db.Exec(ctx, `
            INSERT INTO consultants (id, name, email, major, year, role, attributes)
            VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7)
            ON CONFLICT (id) DO NOTHING
        `, c.ID, c.Name, c.Email, c.Major, c.Year, string(c.Role), attrs)
		res.count(tag, err)
	}
	results = append(results, res)

	res = SeedResult{Table: "projects", Total: len(f.Projects)}
	for _, p := range f.Projects {
		accepts := make([]string, len(p.Accepts))
		for i, a := range p.Accepts {
			accepts[i] = string(a)
		}
		tag, err := db.Exec(ctx, `
            INSERT INTO projects (id, owner_id, name, description, accepts)
            VALUES ($1, $2, $3, NULLIF($4, ''), $5)
            ON CONFLICT (owner_id, id) DO NOTHING
        `, p.ID, p.OwnerID, p.Name, p.Description, accepts)
		res.count(tag, err)
	}
	results = append(results, res)

	return results, nil
}

func (r *SeedResult) count(tag pgconn.CommandTag, err error) {
	if err != nil {
		r.Errors++
		return
	}
	if tag.RowsAffected() == 1 {
		r.Inserted++
	} else {
		r.Skipped++
	}
}
