package evidence

import (
	"context"
	"io"
)

// ImageStore holds the compressed frame payloads.
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Repository holds frame metadata rows.
type Repository interface {
	Save(ctx context.Context, f *Frame) error
	Get(ctx context.Context, id FrameID) (*Frame, error)
}
