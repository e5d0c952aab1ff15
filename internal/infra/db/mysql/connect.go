package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS evidence_frames (
  id            VARCHAR(64) NOT NULL PRIMARY KEY,
  object_key    VARCHAR(255) NOT NULL,
  content_type  VARCHAR(64) NOT NULL,
  size_bytes    BIGINT NOT NULL,
  score         DOUBLE NOT NULL,
  model_version VARCHAR(64) NOT NULL,
  frame_index   INT NOT NULL,
  request_id    VARCHAR(128) NOT NULL,
  source        VARCHAR(512) NOT NULL,
  created_at    DATETIME(6) NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS feedback (
  id              VARCHAR(64) NOT NULL PRIMARY KEY,
  ts              DATETIME(6) NOT NULL,
  received_at     DATETIME(6) NOT NULL,
  prediction      TINYINT(1) NOT NULL,
  confidence      DOUBLE NOT NULL,
  was_correct     TINYINT(1) NOT NULL,
  user_correction TINYINT(1) NULL,
  frame_ids       JSON NOT NULL,
  source          VARCHAR(512) NOT NULL,
  KEY feedback_received_at_idx (received_at, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the evidence and feedback tables when missing. The driver
// runs one statement per Exec unless multiStatements is set, so they go
// one by one.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, strings.TrimSpace(stmt)); err != nil {
			return err
		}
	}
	return nil
}
