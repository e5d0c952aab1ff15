package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the database file and ensures the tables exist.
// ":memory:" is accepted for tests.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent evidence writes.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return conn, nil
}

// Migrate creates the evidence and feedback tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS evidence_frames (
		id TEXT PRIMARY KEY,
		object_key TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		score REAL NOT NULL,
		model_version TEXT NOT NULL,
		frame_index INTEGER NOT NULL,
		request_id TEXT NOT NULL,
		source TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		ts DATETIME NOT NULL,
		received_at DATETIME NOT NULL,
		prediction BOOLEAN NOT NULL,
		confidence REAL NOT NULL,
		was_correct BOOLEAN NOT NULL,
		user_correction BOOLEAN,
		frame_ids TEXT NOT NULL,
		source TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS feedback_received_at_idx ON feedback (received_at DESC, id DESC);
	`
	_, err := db.ExecContext(ctx, query)
	return err
}
