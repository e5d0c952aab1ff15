package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/deepfake-detector/api/internal/domain/evidence"
	"github.com/deepfake-detector/api/internal/domain/feedback"
)

func TestRepositoriesAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("deepfake"),
		tcpostgres.WithUsername("deepfake"),
		tcpostgres.WithPassword("deepfake"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pgContainer)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	t.Run("evidence", func(t *testing.T) {
		repo := NewEvidenceRepository(db)
		f := &evidence.Frame{
			ID:           "pg-frame",
			ObjectKey:    evidence.ObjectKeyFor("pg-frame"),
			ContentType:  "image/jpeg",
			Size:         99,
			Score:        0.12,
			ModelVersion: "20240101000000",
			FrameIndex:   10,
			RequestID:    "r",
			Source:       "upload",
			CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, repo.Save(ctx, f))
		require.NoError(t, repo.Save(ctx, f))

		got, err := repo.Get(ctx, "pg-frame")
		require.NoError(t, err)
		assert.Equal(t, *f, *got)

		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, evidence.ErrNotFound)
	})

	t.Run("feedback", func(t *testing.T) {
		repo := NewFeedbackRepository(db)
		no := false
		base := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Save(ctx, &feedback.Record{ID: "a", Timestamp: base, ReceivedAt: base, WasCorrect: true, Source: "x"}))
		require.NoError(t, repo.Save(ctx, &feedback.Record{
			ID: "b", Timestamp: base, ReceivedAt: base.Add(time.Second), PredictedIsDeepfake: true,
			PredictedConfidence: 0.8, UserCorrection: &no, FrameIDs: []string{"pg-frame"}, Source: "y",
		}))

		recs, err := repo.Paginate(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, feedback.ID("b"), recs[0].ID)
		require.NotNil(t, recs[0].UserCorrection)
		assert.False(t, *recs[0].UserCorrection)
		assert.Equal(t, []string{"pg-frame"}, recs[0].FrameIDs)
		assert.Nil(t, recs[1].UserCorrection)
		assert.Equal(t, []string{}, recs[1].FrameIDs)
	})
}
