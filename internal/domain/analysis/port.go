package analysis

import (
	"context"
	"image"
)

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Preprocessor normalises a decoded frame into the classifier's input.
type Preprocessor interface {
	Preprocess(img image.Image) Tensor
}

// Classifier scores one preprocessed frame.
type Classifier interface {
	Infer(ctx context.Context, t Tensor) (float64, error)
}

// Decoder yields the frames of a video file in decode order.
type Decoder interface {
	Decode(ctx context.Context, videoPath string, yield func(index int, img image.Image) error) error
}

// RetainedFrame is a frame the sampler kept, with the identity assigned to it.
type RetainedFrame struct {
	ID        string
	Index     int
	Image     image.Image
	Score     float64
	RequestID string
	Source    string
}

// EvidenceWriter persists one retained frame and returns its identifier.
type EvidenceWriter interface {
	Put(ctx context.Context, f RetainedFrame) (string, error)
}
