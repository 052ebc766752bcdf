package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UploadKind selects which session slot an upload fills
type UploadKind string

const (
	UploadDBC   UploadKind = "dbc"
	UploadTrace UploadKind = "trace"
)

// EnsureSession creates the session if it does not exist yet
func (db *DB) EnsureSession(id string) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec(
		`INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// SaveUpload stores one uploaded file in the session. Any previous decode
// result is cleared so a stale CSV is never served.
func (db *DB) SaveUpload(id string, kind UploadKind, name string, data []byte) error {
	if err := db.EnsureSession(id); err != nil {
		return err
	}

	var query string
	switch kind {
	case UploadDBC:
		query = `UPDATE sessions SET dbc_name = ?, dbc = ?, csv = NULL, run_id = NULL, updated_at = ? WHERE id = ?`
	case UploadTrace:
		query = `UPDATE sessions SET trace_name = ?, trace = ?, csv = NULL, run_id = NULL, updated_at = ? WHERE id = ?`
	default:
		return fmt.Errorf("unknown upload kind %q", kind)
	}

	if _, err := db.conn.Exec(query, name, db.compress(data), time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to save %s upload: %w", kind, err)
	}
	return nil
}

// SaveResult stores the CSV artifact of the latest decode, or clears it when csv is nil
func (db *DB) SaveResult(id string, csv []byte, runID *int64) error {
	result, err := db.conn.Exec(
		`UPDATE sessions SET csv = ?, run_id = ?, updated_at = ? WHERE id = ?`,
		db.compress(csv), runID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to save session result: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession retrieves a session with its blobs decompressed
func (db *DB) GetSession(id string) (*Session, error) {
	s := &Session{}
	var dbcBlob, traceBlob, csvBlob []byte
	err := db.conn.QueryRow(
		`SELECT id, dbc_name, dbc, trace_name, trace, csv, run_id, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(
		&s.ID, &s.DBCName, &dbcBlob, &s.TraceName, &traceBlob, &csvBlob,
		&s.RunID, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if s.DBC, err = db.decompress(dbcBlob); err != nil {
		return nil, err
	}
	if s.Trace, err = db.decompress(traceBlob); err != nil {
		return nil, err
	}
	if s.CSV, err = db.decompress(csvBlob); err != nil {
		return nil, err
	}
	return s, nil
}

// PruneSessions deletes sessions idle since before cutoff
func (db *DB) PruneSessions(cutoff time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned sessions: %w", err)
	}
	return n, nil
}

// CountSessions returns the number of stored sessions
func (db *DB) CountSessions() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}
