package analysis

import "errors"

var (
	// ErrNoFramesAnalyzed means no frame produced a valid score.
	ErrNoFramesAnalyzed = errors.New("no frames could be analyzed")

	// ErrFrameDecode marks a single frame whose bytes are not an image.
	ErrFrameDecode = errors.New("frame decode failed")

	// ErrInference marks a classifier fault on a single frame.
	ErrInference = errors.New("inference failed")

	// ErrUnreadableVideo means the container could not be opened at all.
	ErrUnreadableVideo = errors.New("cannot read video file")

	// ErrAnalysisTimeout means the per-request budget was exhausted.
	// Callers may retry.
	ErrAnalysisTimeout = errors.New("analysis timed out")

	// ErrNoInput means the request carried nothing to analyze.
	ErrNoInput = errors.New("no frames provided")
)
