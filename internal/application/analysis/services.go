package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	domain "github.com/deepfake-detector/api/internal/domain/analysis"
	"github.com/deepfake-detector/api/internal/infra/metrics"
)

// Options tunes the frame pipeline. Zero values fall back to defaults.
type Options struct {
	// Workers is the number of concurrent decode/preprocess/infer workers.
	Workers int
	// Window bounds frames in flight plus frames waiting for reordering.
	Window int
	// Timeout is the wall-clock budget of one request.
	Timeout time.Duration
	// StoreConcurrency bounds concurrent evidence writes per request.
	StoreConcurrency int
	// StoreTimeout bounds a single evidence write.
	StoreTimeout time.Duration
	// StoreQueue bounds retained frames waiting for a writer. Frames
	// retained while the queue is full are dropped.
	StoreQueue int
	// StoreGrace is how long past the request deadline the result waits
	// for pending evidence writes.
	StoreGrace time.Duration
	// TempDir receives spooled uploads; empty means os.TempDir.
	TempDir string
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Window < o.Workers {
		o.Window = o.Workers * 4
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	if o.StoreConcurrency <= 0 {
		o.StoreConcurrency = 4
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 10 * time.Second
	}
	if o.StoreQueue <= 0 {
		o.StoreQueue = 64
	}
	if o.StoreGrace <= 0 {
		o.StoreGrace = time.Second
	}
	return o
}

// Service runs both intake pipelines (video and batch) through one frame
// pipeline and one Aggregator. Safe for concurrent use.
type Service struct {
	Preprocessor domain.Preprocessor
	Classifier   domain.Classifier
	Decoder      domain.Decoder
	// Evidence may be nil, in which case nothing is retained.
	Evidence   domain.EvidenceWriter
	Aggregator *domain.Aggregator
	Sampling   domain.SamplingPolicy
	Logger     *zap.Logger
	Options    Options
}

//
// ==== USE CASES ====
//

// AnalyzeVideoCommand analyzes a video file already on disk.
type AnalyzeVideoCommand struct {
	RequestID string
	Path      string
	Source    string
}

// AnalyzeBatchCommand analyzes client-extracted frames. Each frame is a
// base64 image, optionally behind a data-URI header.
type AnalyzeBatchCommand struct {
	RequestID    string
	Frames       []string
	Source       string
	BatchInfo    string
	Dimensions   string
	FacialFrames int
}

// AnalyzeVideo decodes the video at cmd.Path and classifies its frames.
func (s *Service) AnalyzeVideo(ctx context.Context, cmd AnalyzeVideoCommand) (domain.Result, error) {
	log := s.logger().With(
		zap.String("request_id", cmd.RequestID),
		zap.String("pipeline", string(domain.PipelineVideo)),
	)
	log.Info("video analysis started", zap.String("path", cmd.Path))

	produce := func(ctx context.Context, emit emitFunc) error {
		return s.Decoder.Decode(ctx, cmd.Path, func(index int, img image.Image) error {
			return emit(frameJob{index: index, load: func() (image.Image, error) { return img, nil }})
		})
	}
	return s.run(ctx, domain.PipelineVideo, cmd.RequestID, cmd.Source, produce, log)
}

// AnalyzeUpload spools r to a private temp file, analyzes it and removes it.
func (s *Service) AnalyzeUpload(ctx context.Context, requestID string, r io.Reader) (domain.Result, error) {
	f, err := os.CreateTemp(s.Options.TempDir, "upload-*.mp4")
	if err != nil {
		return domain.Result{}, fmt.Errorf("create upload file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return domain.Result{}, fmt.Errorf("spool upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return domain.Result{}, fmt.Errorf("spool upload: %w", err)
	}
	return s.AnalyzeVideo(ctx, AnalyzeVideoCommand{RequestID: requestID, Path: path, Source: "upload"})
}

// AnalyzeBatch classifies client-supplied frames in array order.
func (s *Service) AnalyzeBatch(ctx context.Context, cmd AnalyzeBatchCommand) (domain.Result, error) {
	log := s.logger().With(
		zap.String("request_id", cmd.RequestID),
		zap.String("pipeline", string(domain.PipelineBatch)),
	)
	if len(cmd.Frames) == 0 {
		log.Warn("no frames provided")
		metrics.AnalysesTotal.WithLabelValues(string(domain.PipelineBatch), "rejected").Inc()
		return domain.Result{}, domain.ErrNoInput
	}
	log.Info("batch analysis started",
		zap.Int("frames", len(cmd.Frames)),
		zap.String("source", cmd.Source),
		zap.String("batch", cmd.BatchInfo),
		zap.String("dimensions", cmd.Dimensions),
		zap.Int("facial_frames", cmd.FacialFrames),
	)

	produce := func(ctx context.Context, emit emitFunc) error {
		for i, raw := range cmd.Frames {
			raw := raw
			if err := emit(frameJob{index: i, load: func() (image.Image, error) { return DecodeFrame(raw) }}); err != nil {
				return err
			}
		}
		return nil
	}
	return s.run(ctx, domain.PipelineBatch, cmd.RequestID, cmd.Source, produce, log)
}

//
// ==== PIPELINE ====
//

type frameJob struct {
	index int
	load  func() (image.Image, error)
}

type frameOutcome struct {
	index int
	img   image.Image
	score float64
	err   error
}

type storedFrame struct {
	index int
	id    string
}

type emitFunc func(frameJob) error

type producer func(ctx context.Context, emit emitFunc) error

func (s *Service) run(parent context.Context, pipeline domain.Pipeline, requestID, source string, produce producer, log *zap.Logger) (domain.Result, error) {
	opts := s.Options.withDefaults()
	start := time.Now()
	pl := string(pipeline)

	metrics.ActiveAnalyses.Inc()
	defer metrics.ActiveAnalyses.Dec()

	tracer := otel.Tracer("analysis")
	parent, span := tracer.Start(parent, "analysis.run")
	span.SetAttributes(attribute.String("pipeline", pl), attribute.String("request_id", requestID))
	defer span.End()

	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	jobs := make(chan frameJob)
	outcomes := make(chan frameOutcome, opts.Window)
	slots := make(chan struct{}, opts.Window)

	var workers sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for job := range jobs {
				outcomes <- s.score(ctx, job)
			}
		}()
	}

	var (
		received    int
		produceErr  error
		producerEnd = make(chan struct{})
	)
	go func() {
		defer close(producerEnd)
		defer close(jobs)
		emit := func(job frameJob) error {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case jobs <- job:
				received++
				return nil
			case <-ctx.Done():
				<-slots
				return ctx.Err()
			}
		}
		produceErr = produce(ctx, emit)
	}()

	go func() {
		workers.Wait()
		close(outcomes)
	}()

	policy := s.Sampling
	if policy == (domain.SamplingPolicy{}) {
		policy = domain.DefaultSamplingPolicy()
	}
	aggregator := s.Aggregator
	if aggregator == nil {
		aggregator = domain.NewAggregator(domain.DefaultThresholds())
	}

	var (
		scores   []float64
		sampler  = domain.NewSampler(policy)
		pending  = make(map[int]frameOutcome)
		next     int
		stored   []storedFrame
		storedMu sync.Mutex
		writes   sync.WaitGroup
		queue    chan domain.RetainedFrame
	)

	if s.Evidence != nil {
		queue = make(chan domain.RetainedFrame, opts.StoreQueue)
		// Writes outlive the request; already retained frames stay persisted.
		storeCtx := context.WithoutCancel(ctx)
		for w := 0; w < opts.StoreConcurrency; w++ {
			writes.Add(1)
			go func() {
				defer writes.Done()
				for rf := range queue {
					id, err := s.store(storeCtx, rf, opts.StoreTimeout)
					if err != nil {
						log.Warn("evidence frame not stored", zap.Int("frame", rf.Index), zap.Error(err))
						continue
					}
					storedMu.Lock()
					stored = append(stored, storedFrame{index: rf.Index, id: id})
					storedMu.Unlock()
				}
			}()
		}
	}

	accept := func(o frameOutcome) {
		if o.err != nil {
			reason := "inference"
			if errors.Is(o.err, domain.ErrFrameDecode) {
				reason = "decode"
			}
			if ctx.Err() != nil {
				reason = "cancelled"
			}
			metrics.FramesSkippedTotal.WithLabelValues(pl, reason).Inc()
			log.Warn("frame skipped", zap.Int("frame", o.index), zap.String("reason", reason), zap.Error(o.err))
			return
		}
		scores = append(scores, o.score)
		metrics.FramesAnalyzedTotal.WithLabelValues(pl).Inc()

		if queue == nil || !sampler.Offer(o.index) {
			return
		}
		rf := domain.RetainedFrame{
			ID:        uuid.NewString(),
			Index:     o.index,
			Image:     o.img,
			Score:     o.score,
			RequestID: requestID,
			Source:    source,
		}
		select {
		case queue <- rf:
		default:
			metrics.EvidenceFailuresTotal.WithLabelValues("dropped").Inc()
			log.Warn("evidence queue full, frame not stored", zap.Int("frame", rf.Index))
		}
	}

	// Outcomes arrive in completion order; the sampler must see index order.
	for o := range outcomes {
		pending[o.index] = o
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			<-slots
			accept(ready)
		}
	}
	<-producerEnd
	if queue != nil {
		close(queue)
	}

	if err := ctx.Err(); err != nil {
		metrics.AnalysesTotal.WithLabelValues(pl, "timeout").Inc()
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			log.Warn("analysis timed out", zap.Duration("budget", opts.Timeout), zap.Int("frames_scored", len(scores)))
			return domain.Result{}, fmt.Errorf("%w after %s", domain.ErrAnalysisTimeout, opts.Timeout)
		}
		return domain.Result{}, err
	}
	deadline, _ := ctx.Deadline()
	if !waitUntil(&writes, deadline.Add(opts.StoreGrace)) {
		log.Warn("evidence writes still pending, listing stored frames only")
	}

	storedMu.Lock()
	listed := append([]storedFrame(nil), stored...)
	storedMu.Unlock()
	sort.Slice(listed, func(i, j int) bool { return listed[i].index < listed[j].index })
	ids := make([]string, 0, len(listed))
	for _, sf := range listed {
		ids = append(ids, sf.id)
	}

	if produceErr != nil {
		if errors.Is(produceErr, domain.ErrUnreadableVideo) || received == 0 {
			metrics.AnalysesTotal.WithLabelValues(pl, "unreadable").Inc()
			span.SetStatus(codes.Error, produceErr.Error())
			log.Warn("frame source failed", zap.Error(produceErr))
			if errors.Is(produceErr, domain.ErrUnreadableVideo) {
				return domain.Result{}, produceErr
			}
			return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrUnreadableVideo, produceErr)
		}
		log.Warn("frame source stopped early", zap.Int("frames_received", received), zap.Error(produceErr))
	}

	_, aggSpan := tracer.Start(parent, "analysis.aggregate")
	verdict, err := aggregator.Aggregate(scores)
	aggSpan.End()
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(pl, "no_frames").Inc()
		log.Warn("no frames could be analyzed", zap.Int("frames_received", received))
		return domain.Result{}, err
	}

	res := domain.Result{
		Verdict:          verdict,
		FramesReceived:   received,
		RetainedFrameIDs: ids,
		Stats:            domain.Stats(scores),
	}

	elapsed := time.Since(start)
	metrics.AnalysesTotal.WithLabelValues(pl, "success").Inc()
	metrics.VerdictsTotal.WithLabelValues(pl, verdictLabel(verdict.IsDeepfake)).Inc()
	metrics.AnalysisDuration.WithLabelValues(pl).Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("frames_received", received),
		attribute.Int("frames_analyzed", verdict.FramesAnalyzed),
		attribute.Bool("deepfake", verdict.IsDeepfake),
	)

	th := aggregator.Thresholds()
	log.Info("analysis complete",
		zap.Int("frames_received", received),
		zap.Int("frames_analyzed", verdict.FramesAnalyzed),
		zap.Int("deepfake_frames", verdict.DeepfakeFrameCount),
		zap.Float64("deepfake_ratio", verdict.DeepfakeRatio),
		zap.Bool("deepfake", verdict.IsDeepfake),
		zap.Float64("confidence", verdict.Confidence),
		zap.Float64("frame_threshold", th.Frame),
		zap.Float64("majority_threshold", th.Majority),
		zap.Float64("score_avg", res.Stats.Mean),
		zap.Float64("score_min", res.Stats.Min),
		zap.Float64("score_max", res.Stats.Max),
		zap.Int("evidence_stored", len(ids)),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

func (s *Service) store(ctx context.Context, rf domain.RetainedFrame, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Evidence.Put(ctx, rf)
}

// waitUntil waits for wg and reports false if deadline passes first.
func waitUntil(wg *sync.WaitGroup, deadline time.Time) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// score loads, preprocesses and classifies one frame.
func (s *Service) score(ctx context.Context, job frameJob) frameOutcome {
	out := frameOutcome{index: job.index}
	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}

	img, err := job.load()
	if err != nil {
		out.err = fmt.Errorf("frame %d: %w", job.index, err)
		return out
	}
	out.img = img

	tensor := s.Preprocessor.Preprocess(img)
	started := time.Now()
	score, err := s.Classifier.Infer(ctx, tensor)
	metrics.InferenceDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		out.err = fmt.Errorf("frame %d: %w", job.index, err)
		return out
	}
	out.score = score
	return out
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func verdictLabel(deepfake bool) string {
	if deepfake {
		return "deepfake"
	}
	return "authentic"
}
