package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/deepfake-detector/api/internal/application"
	domain "github.com/deepfake-detector/api/internal/domain/feedback"
	"github.com/deepfake-detector/api/internal/infra/metrics"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Service records human feedback on earlier verdicts. Referenced frame ids
// are stored as given; they are never checked against the evidence store.
type Service struct {
	Repo domain.Repository
	// Retraining is optional; corrections are only logged when nil.
	Retraining domain.RetrainingPublisher
	Clock      application.Clock
	Logger     *zap.Logger
}

// Submit normalizes raw, persists it and returns the new record id.
func (s *Service) Submit(ctx context.Context, raw []byte) (domain.ID, error) {
	ctx, span := otel.Tracer("feedback").Start(ctx, "feedback.submit")
	defer span.End()

	now := s.now()
	rec, err := domain.Normalize(raw, now)
	if err != nil {
		metrics.FeedbackTotal.WithLabelValues("invalid").Inc()
		return "", err
	}
	rec.ID = domain.ID(uuid.NewString())
	rec.ReceivedAt = now

	if err := s.Repo.Save(ctx, &rec); err != nil {
		metrics.FeedbackTotal.WithLabelValues("error").Inc()
		s.logger().Error("feedback not stored", zap.Error(err))
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	metrics.FeedbackTotal.WithLabelValues("stored").Inc()

	log := s.logger().With(zap.String("feedback_id", string(rec.ID)))
	log.Info("feedback stored",
		zap.Bool("prediction", rec.PredictedIsDeepfake),
		zap.Float64("confidence", rec.PredictedConfidence),
		zap.Bool("was_correct", rec.WasCorrect),
		zap.Int("frames", len(rec.FrameIDs)),
		zap.String("source", rec.Source),
	)

	if rec.WantsRetraining() {
		s.publishRetraining(ctx, &rec, log)
	}
	return rec.ID, nil
}

// publishRetraining is best-effort; the record is already durable.
func (s *Service) publishRetraining(ctx context.Context, rec *domain.Record, log *zap.Logger) {
	if s.Retraining == nil {
		return
	}
	req := domain.RetrainingRequest{
		FeedbackID:          rec.ID,
		PredictedIsDeepfake: rec.PredictedIsDeepfake,
		UserCorrection:      *rec.UserCorrection,
		FrameIDs:            rec.FrameIDs,
		Source:              rec.Source,
	}
	if err := s.Retraining.PublishRetraining(ctx, req); err != nil {
		metrics.RetrainingPublishedTotal.WithLabelValues("error").Inc()
		log.Warn("retraining request not published", zap.Error(err))
		return
	}
	metrics.RetrainingPublishedTotal.WithLabelValues("ok").Inc()
}

// List returns one page of feedback, newest first.
func (s *Service) List(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	recs, err := s.Repo.Paginate(ctx, page, pageSize)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if recs == nil {
		recs = []*domain.Record{}
	}
	return domain.PaginatedResult{Data: recs, Page: page, PageSize: pageSize}, nil
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return application.SystemClock{}.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
