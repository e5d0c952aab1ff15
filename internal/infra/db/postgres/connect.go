package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS evidence_frames (
  id            VARCHAR(64) PRIMARY KEY,
  object_key    TEXT NOT NULL,
  content_type  VARCHAR(64) NOT NULL,
  size_bytes    BIGINT NOT NULL,
  score         DOUBLE PRECISION NOT NULL,
  model_version VARCHAR(64) NOT NULL,
  frame_index   INTEGER NOT NULL,
  request_id    VARCHAR(128) NOT NULL,
  source        TEXT NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS feedback (
  id              VARCHAR(64) PRIMARY KEY,
  ts              TIMESTAMPTZ NOT NULL,
  received_at     TIMESTAMPTZ NOT NULL,
  prediction      BOOLEAN NOT NULL,
  confidence      DOUBLE PRECISION NOT NULL,
  was_correct     BOOLEAN NOT NULL,
  user_correction BOOLEAN NULL,
  frame_ids       JSONB NOT NULL,
  source          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS feedback_received_at_idx ON feedback (received_at DESC, id DESC);
`

// Migrate creates the evidence and feedback tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
