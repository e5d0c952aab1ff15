package mysql

import (
	"context"
	"database/sql"

	domain "github.com/deepfake-detector/api/internal/domain/feedback"
)

type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Save appends a feedback record.
func (r *FeedbackRepository) Save(ctx context.Context, rec *domain.Record) error {
	const q = `
INSERT INTO feedback
  (id, ts, received_at, prediction, confidence, was_correct, user_correction, frame_ids, source)
VALUES (?,?,?,?,?,?,?,?,?);
`
	ids, err := encodeIDs(rec.FrameIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		string(rec.ID), rec.Timestamp, rec.ReceivedAt, rec.PredictedIsDeepfake, rec.PredictedConfidence,
		rec.WasCorrect, nullBool(rec.UserCorrection), ids, stringOrDash(rec.Source),
	)
	return err
}

// Paginate returns a page of feedback ordered by received_at desc
func (r *FeedbackRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Record, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, ts, received_at, prediction, confidence, was_correct, user_correction, frame_ids, source
FROM feedback
ORDER BY received_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		var rec domain.Record
		var id string
		var correction sql.NullBool
		var ids []byte
		if err := rows.Scan(&id, &rec.Timestamp, &rec.ReceivedAt, &rec.PredictedIsDeepfake, &rec.PredictedConfidence,
			&rec.WasCorrect, &correction, &ids, &rec.Source); err != nil {
			return nil, err
		}
		rec.ID = domain.ID(id)
		rec.Timestamp = rec.Timestamp.UTC()
		rec.ReceivedAt = rec.ReceivedAt.UTC()
		rec.UserCorrection = boolPtr(correction)
		if rec.FrameIDs, err = decodeIDs(ids); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
