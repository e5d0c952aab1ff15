package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	domain "github.com/deepfake-detector/api/internal/domain/feedback"
)

type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Save(ctx context.Context, rec *domain.Record) error {
	const q = `
INSERT INTO feedback
  (id, ts, received_at, prediction, confidence, was_correct, user_correction, frame_ids, source)
VALUES (?,?,?,?,?,?,?,?,?);
`
	ids := rec.FrameIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	var correction sql.NullBool
	if rec.UserCorrection != nil {
		correction = sql.NullBool{Bool: *rec.UserCorrection, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, q,
		string(rec.ID), rec.Timestamp.UTC(), rec.ReceivedAt.UTC(), rec.PredictedIsDeepfake, rec.PredictedConfidence,
		rec.WasCorrect, correction, string(idsJSON), rec.Source,
	)
	return err
}

func (r *FeedbackRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Record, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	const q = `
SELECT id, ts, received_at, prediction, confidence, was_correct, user_correction, frame_ids, source
FROM feedback
ORDER BY received_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		var rec domain.Record
		var id, idsJSON string
		var correction sql.NullBool
		if err := rows.Scan(&id, &rec.Timestamp, &rec.ReceivedAt, &rec.PredictedIsDeepfake, &rec.PredictedConfidence,
			&rec.WasCorrect, &correction, &idsJSON, &rec.Source); err != nil {
			return nil, err
		}
		rec.ID = domain.ID(id)
		rec.Timestamp = rec.Timestamp.UTC()
		rec.ReceivedAt = rec.ReceivedAt.UTC()
		if correction.Valid {
			v := correction.Bool
			rec.UserCorrection = &v
		}
		rec.FrameIDs = []string{}
		if err := json.Unmarshal([]byte(idsJSON), &rec.FrameIDs); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
