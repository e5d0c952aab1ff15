package feedback

import "errors"

var (
	// ErrValidation means the payload is not a JSON object at all.
	ErrValidation = errors.New("invalid feedback payload")

	// ErrStorage means the feedback log rejected or lost a write.
	ErrStorage = errors.New("feedback storage failure")
)
