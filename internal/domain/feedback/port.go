package feedback

import "context"

// Repository is the append-only feedback log.
type Repository interface {
	Save(ctx context.Context, r *Record) error
	Paginate(ctx context.Context, page, pageSize int) ([]*Record, error)
}

// RetrainingPublisher forwards corrections to the retraining queue.
type RetrainingPublisher interface {
	PublishRetraining(ctx context.Context, req RetrainingRequest) error
}
