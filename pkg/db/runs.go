package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `id, source, dbc_name, trace_name, trace_version, format,
	lines, records, skipped, malformed, length_mismatches, decoded, unresolved,
	row_count, column_names, meta, created_at`

// CreateRun stores a run and its compressed CSV artifact
func (db *DB) CreateRun(run *Run, csv []byte) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	result, err := db.conn.Exec(
		`INSERT INTO runs (source, dbc_name, trace_name, trace_version, format,
		 lines, records, skipped, malformed, length_mismatches, decoded, unresolved,
		 row_count, column_names, meta, csv, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Source, run.DBCName, run.TraceName, run.TraceVersion, run.Format,
		run.Lines, run.Records, run.Skipped, run.Malformed, run.LengthMismatches,
		run.Decoded, run.Unresolved, run.Rows, run.Columns, run.Meta,
		db.compress(csv), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id int64) (*Run, error) {
	run, err := scanRun(db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRunCSV returns the decompressed CSV artifact of a run
func (db *DB) GetRunCSV(id int64) ([]byte, error) {
	var blob []byte
	err := db.conn.QueryRow(`SELECT csv FROM runs WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run CSV: %w", err)
	}
	return db.decompress(blob)
}

// ListRuns retrieves runs based on filters, newest first
func (db *DB) ListRuns(filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []interface{}{}

	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}

	if filter.DBCName != "" {
		query += " AND dbc_name = ?"
		args = append(args, filter.DBCName)
	}

	if filter.StartTime != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.StartTime.UTC())
	}

	if filter.EndTime != nil {
		query += " AND created_at <= ?"
		args = append(args, filter.EndTime.UTC())
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// DeleteRun removes a run; sessions pointing at it keep their CSV
func (db *DB) DeleteRun(id int64) error {
	result, err := db.conn.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.ID, &run.Source, &run.DBCName, &run.TraceName, &run.TraceVersion, &run.Format,
		&run.Lines, &run.Records, &run.Skipped, &run.Malformed, &run.LengthMismatches,
		&run.Decoded, &run.Unresolved, &run.Rows, &run.Columns, &run.Meta, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// PruneRuns deletes runs created before cutoff
func (db *DB) PruneRuns(cutoff time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM runs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return n, nil
}
