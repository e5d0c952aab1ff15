package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/deepfake-detector/api/internal/domain/evidence"
)

type EvidenceRepository struct {
	db *sql.DB
}

func NewEvidenceRepository(db *sql.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

func (r *EvidenceRepository) Save(ctx context.Context, f *domain.Frame) error {
	const q = `
INSERT INTO evidence_frames
  (id, object_key, content_type, size_bytes, score, model_version, frame_index, request_id, source, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (id) DO NOTHING;
`
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		string(f.ID), f.ObjectKey, f.ContentType, f.Size, f.Score,
		f.ModelVersion, f.FrameIndex, f.RequestID, f.Source, createdAt.UTC(),
	)
	return err
}

func (r *EvidenceRepository) Get(ctx context.Context, id domain.FrameID) (*domain.Frame, error) {
	const q = `
SELECT id, object_key, content_type, size_bytes, score, model_version, frame_index, request_id, source, created_at
FROM evidence_frames
WHERE id = ?;`
	var f domain.Frame
	var fid string
	err := r.db.QueryRowContext(ctx, q, string(id)).Scan(
		&fid, &f.ObjectKey, &f.ContentType, &f.Size, &f.Score,
		&f.ModelVersion, &f.FrameIndex, &f.RequestID, &f.Source, &f.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.ID = domain.FrameID(fid)
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}
