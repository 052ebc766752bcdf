package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when a session or run does not exist
var ErrNotFound = errors.New("not found")

// DB wraps the SQL database connection and the blob codec
type DB struct {
	conn    *sql.DB
	path    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open creates or opens a SQLite database
func Open(path string) (*DB, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}

	db := &DB{
		conn:    conn,
		path:    path,
		encoder: encoder,
		decoder: decoder,
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.decoder.Close()
	_ = db.encoder.Close()
	return db.conn.Close()
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate creates or updates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		dbc_name TEXT NOT NULL DEFAULT '',
		trace_name TEXT NOT NULL DEFAULT '',
		trace_version TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL DEFAULT '',
		lines INTEGER DEFAULT 0,
		records INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		malformed INTEGER DEFAULT 0,
		length_mismatches INTEGER DEFAULT 0,
		decoded INTEGER DEFAULT 0,
		unresolved INTEGER DEFAULT 0,
		row_count INTEGER DEFAULT 0,
		column_names TEXT,
		meta TEXT,
		csv BLOB,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		dbc_name TEXT NOT NULL DEFAULT '',
		dbc BLOB,
		trace_name TEXT NOT NULL DEFAULT '',
		trace BLOB,
		csv BLOB,
		run_id INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// compress zstd-encodes a blob; empty input is stored as NULL
func (db *DB) compress(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return db.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func (db *DB) decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out, err := db.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress blob: %w", err)
	}
	return out, nil
}
