package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/deepfake-detector/api/internal/application"
	"github.com/deepfake-detector/api/internal/domain/analysis"
	domain "github.com/deepfake-detector/api/internal/domain/evidence"
	"github.com/deepfake-detector/api/internal/infra/metrics"
)

const (
	DefaultJPEGQuality = 80
	contentTypeJPEG    = "image/jpeg"
)

// Service persists retained frames: the JPEG payload goes to Images and the
// metadata row to Repo. ModelVersion is fixed for the life of the process.
type Service struct {
	Images       domain.ImageStore
	Repo         domain.Repository
	Clock        application.Clock
	Logger       *zap.Logger
	ModelVersion string
	JPEGQuality  int
}

// Put encodes and stores one retained frame and returns its id.
func (s *Service) Put(ctx context.Context, f analysis.RetainedFrame) (string, error) {
	ctx, span := otel.Tracer("evidence").Start(ctx, "evidence.put")
	defer span.End()
	span.SetAttributes(attribute.String("frame_id", f.ID), attribute.Int("frame_index", f.Index))

	if strings.TrimSpace(f.ID) == "" || f.Image == nil {
		return "", fmt.Errorf("evidence put: frame id and image are required")
	}

	quality := s.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		metrics.EvidenceFailuresTotal.WithLabelValues("encode").Inc()
		return "", &domain.StorageError{Op: "encode", Err: err}
	}

	id := domain.FrameID(f.ID)
	frame := &domain.Frame{
		ID:           id,
		ObjectKey:    domain.ObjectKeyFor(id),
		ContentType:  contentTypeJPEG,
		Size:         int64(buf.Len()),
		Score:        f.Score,
		ModelVersion: s.ModelVersion,
		FrameIndex:   f.Index,
		RequestID:    f.RequestID,
		Source:       f.Source,
		CreatedAt:    s.now(),
	}

	if err := s.Images.Put(ctx, frame.ObjectKey, &buf, frame.Size, frame.ContentType); err != nil {
		metrics.EvidenceFailuresTotal.WithLabelValues("image").Inc()
		return "", &domain.StorageError{Op: "put image", Err: err}
	}
	if err := s.Repo.Save(ctx, frame); err != nil {
		metrics.EvidenceFailuresTotal.WithLabelValues("metadata").Inc()
		if derr := s.Images.Delete(context.WithoutCancel(ctx), frame.ObjectKey); derr != nil {
			s.logger().Warn("orphaned evidence image", zap.String("key", frame.ObjectKey), zap.Error(derr))
		}
		return "", &domain.StorageError{Op: "save metadata", Err: err}
	}

	metrics.EvidenceStoredTotal.Inc()
	s.logger().Debug("evidence frame stored",
		zap.String("frame_id", f.ID),
		zap.Int("frame_index", f.Index),
		zap.Float64("score", f.Score),
		zap.Int64("bytes", frame.Size),
	)
	return f.ID, nil
}

// Get returns the metadata of a stored frame or ErrNotFound.
func (s *Service) Get(ctx context.Context, id domain.FrameID) (*domain.Frame, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, domain.ErrNotFound
	}
	f, err := s.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "get metadata", Err: err}
	}
	return f, nil
}

// OpenImage returns the frame metadata and a reader over its JPEG payload.
// The caller closes the reader.
func (s *Service) OpenImage(ctx context.Context, id domain.FrameID) (*domain.Frame, io.ReadCloser, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.Images.Get(ctx, f.ObjectKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, &domain.StorageError{Op: "get image", Err: err}
	}
	return f, rc, nil
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
