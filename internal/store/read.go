package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Compilation is one recorded compilation attempt.
type Compilation struct {
	ID          string
	ModuleName  string
	Fingerprint string
	Device      string
	CreatedAt   string
}

// PassRun is one recorded pass execution.
type PassRun struct {
	Pipeline string
	Pass     string
	Seq      int
	Changed  bool
	Error    string
}

// Compilations lists recorded compilations, newest first, up to limit.
// limit <= 0 means no limit.
func (s *Store) Compilations(ctx context.Context, limit int) ([]Compilation, error) {
	query := `
		SELECT id, module_name, fingerprint, device, created_at
		FROM compilations
		ORDER BY created_at DESC, id
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list compilations: %w", err)
	}
	defer rows.Close()

	var out []Compilation
	for rows.Next() {
		var c Compilation
		if err := rows.Scan(&c.ID, &c.ModuleName, &c.Fingerprint, &c.Device, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan compilation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PassRuns returns the pass runs of one compilation in execution order.
func (s *Store) PassRuns(ctx context.Context, compilationID string) ([]PassRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pipeline, pass, seq, changed, COALESCE(error, '')
		FROM pass_runs
		WHERE compilation_id = ?
		ORDER BY id
	`, compilationID)
	if err != nil {
		return nil, fmt.Errorf("list pass runs: %w", err)
	}
	defer rows.Close()

	var out []PassRun
	for rows.Next() {
		var r PassRun
		if err := rows.Scan(&r.Pipeline, &r.Pass, &r.Seq, &r.Changed, &r.Error); err != nil {
			return nil, fmt.Errorf("scan pass run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
