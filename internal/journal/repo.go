package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/beamline/internal/apperr"
	"github.com/starford/beamline/internal/models"
)

const runColumns = `id, path, kind, steps, outcome, renamed_to, error, checksum, retries, started_at, duration_ns`

// Record inserts a run and, when it produced output, remembers the output
// checksum under the file's final path.
func (db *DB) Record(r models.Run) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("journal: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	steps := r.Steps
	if steps == nil {
		steps = []string{}
	}
	stepsJSON, _ := json.Marshal(steps)

	_, err = tx.Exec(`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Path, string(r.Kind), string(stepsJSON), string(r.Outcome),
		r.RenamedTo, r.Error, r.Checksum, r.Retries, r.StartedAt.UTC(), int64(r.Duration))
	if err != nil {
		return fmt.Errorf("journal: insert run: %w", err)
	}

	if r.Checksum != "" {
		if r.RenamedTo != "" {
			_, _ = tx.Exec(`DELETE FROM files WHERE path = ?`, r.Path)
		}
		_, err = tx.Exec(`
			INSERT INTO files (path, checksum, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				checksum   = excluded.checksum,
				updated_at = excluded.updated_at
		`, r.FinalPath(), r.Checksum, r.StartedAt.UTC())
		if err != nil {
			return fmt.Errorf("journal: upsert file: %w", err)
		}
	}

	return tx.Commit()
}

// Recent returns the newest runs first. A non-empty path restricts the result
// to runs on that path (either side of a rename).
func (db *DB) Recent(limit int, path string) ([]models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if path != "" {
		rows, err = db.conn.Query(`SELECT `+runColumns+` FROM runs
			WHERE path = ? OR renamed_to = ?
			ORDER BY started_at DESC, rowid DESC LIMIT ?`, path, path, limit)
	} else {
		rows, err = db.conn.Query(`SELECT `+runColumns+` FROM runs
			ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns a single run by ID.
func (db *DB) Get(id string) (*models.Run, error) {
	row := db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("journal: run %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LastChecksum returns the last output checksum recorded for path, or empty
// string when the file has never been written.
func (db *DB) LastChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("journal: last checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → last output checksum for every known file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("journal: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Stats counts runs by outcome.
func (db *DB) Stats() (models.Stats, error) {
	var s models.Stats
	rows, err := db.conn.Query(`SELECT outcome, count(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return s, fmt.Errorf("journal: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return s, err
		}
		s.Total += n
		switch models.Outcome(outcome) {
		case models.OutcomeChanged:
			s.Changed = n
		case models.OutcomeUnchanged:
			s.Unchanged = n
		case models.OutcomeSkipped:
			s.Skipped = n
		case models.OutcomeFailed:
			s.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return s, err
	}

	var last sql.NullString
	if err := db.conn.QueryRow(`SELECT max(started_at) FROM runs`).Scan(&last); err != nil {
		return s, fmt.Errorf("journal: last run: %w", err)
	}
	if last.Valid {
		s.LastRunAt = parseTime(last.String)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (models.Run, error) {
	var (
		r         models.Run
		kind      string
		stepsJSON string
		outcome   string
		durNS     int64
	)
	if err := sc.Scan(&r.ID, &r.Path, &kind, &stepsJSON, &outcome, &r.RenamedTo,
		&r.Error, &r.Checksum, &r.Retries, &r.StartedAt, &durNS); err != nil {
		return r, err
	}
	r.Kind = models.EventKind(kind)
	r.Outcome = models.Outcome(outcome)
	r.Duration = time.Duration(durNS)
	_ = json.Unmarshal([]byte(stepsJSON), &r.Steps)
	return r, nil
}

// parseTime handles the text forms go-sqlite3 returns for aggregate
// expressions, which lose the DATETIME column type.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05Z07:00",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
