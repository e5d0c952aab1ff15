package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appanalysis "github.com/deepfake-detector/api/internal/application/analysis"
	"github.com/deepfake-detector/api/internal/domain/analysis"
	"github.com/deepfake-detector/api/internal/domain/evidence"
	"github.com/deepfake-detector/api/internal/domain/feedback"
	"github.com/deepfake-detector/api/internal/middleware"
)

const banner = "Deepfake detection API is running"

// Analyzer is the analysis service as seen by HTTP.
type Analyzer interface {
	AnalyzeUpload(ctx context.Context, requestID string, r io.Reader) (analysis.Result, error)
	AnalyzeBatch(ctx context.Context, cmd appanalysis.AnalyzeBatchCommand) (analysis.Result, error)
}

type EvidenceReader interface {
	Get(ctx context.Context, id evidence.FrameID) (*evidence.Frame, error)
	OpenImage(ctx context.Context, id evidence.FrameID) (*evidence.Frame, io.ReadCloser, error)
}

type FeedbackService interface {
	Submit(ctx context.Context, raw []byte) (feedback.ID, error)
	List(ctx context.Context, page, pageSize int) (feedback.PaginatedResult, error)
}

// Options carries the non-service wiring of the router.
type Options struct {
	Logger          *zap.Logger
	MaxUploadBytes  int64
	// RateLimit is the per-IP burst on analysis routes; 0 disables limiting.
	RateLimit       int
	RateLimitPerSec float64
	HealthCheckers  map[string]middleware.HealthChecker
	ModelLoaded     func() bool
}

type Router struct {
	analyzer Analyzer
	evidence EvidenceReader
	feedback FeedbackService
	log      *zap.Logger
	maxBody  int64
}

func NewRouter(analyzer Analyzer, evidenceSvc EvidenceReader, feedbackSvc FeedbackService, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxBody := opts.MaxUploadBytes
	if maxBody <= 0 {
		maxBody = 512 << 20
	}
	r := &Router{analyzer: analyzer, evidence: evidenceSvc, feedback: feedbackSvc, log: log, maxBody: maxBody}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware(log))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", "Cache-Control", "Pragma"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler(opts.ModelLoaded, opts.HealthCheckers))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Handle("/metrics", middleware.MetricsHandler())

	mux.Get("/", r.handleBanner)
	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.RateLimitMiddleware(opts.RateLimit, opts.RateLimitPerSec))
		rt.Post("/", r.wrap(r.handleUpload))
		rt.Post("/frames", r.wrap(r.handleFrames))
	})

	mux.Post("/feedback", r.wrap(r.handleSubmitFeedback))
	mux.Get("/feedback", r.wrap(r.handleListFeedback))

	mux.Get("/evidence/{id}", r.wrap(r.handleGetEvidence))
	mux.Get("/evidence/{id}/image", r.wrap(r.handleGetEvidenceImage))

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks a client error that is not an expected analysis outcome.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var br badRequest
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &br):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": br.msg})
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
				"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
		case errors.Is(err, evidence.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		case errors.Is(err, feedback.ErrStorage):
			r.log.Error("feedback storage failure", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		default:
			r.log.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /
func (r *Router) handleBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, banner)
}

// POST /   multipart form, field "file"
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	requestID := middleware.RequestID(req.Header.Get(middleware.RequestIDHeader))
	req.Body = http.MaxBytesReader(w, req.Body, r.maxBody)

	file, err := filePart(req)
	if err != nil {
		return err
	}
	if file == nil {
		writeJSON(w, http.StatusOK, analysisError{Error: "No file uploaded", Status: statusError, RequestID: requestID})
		return nil
	}
	defer file.Close()

	// Peek so an empty part is reported as missing instead of unreadable.
	body := bufio.NewReader(file)
	if _, err := body.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusOK, analysisError{Error: "No file uploaded", Status: statusError, RequestID: requestID})
			return nil
		}
		return err
	}

	start := time.Now()
	res, err := r.analyzer.AnalyzeUpload(req.Context(), requestID, body)
	return r.writeAnalysis(w, requestID, start, res, err)
}

// filePart returns the "file" part of a multipart body, or nil when absent.
func filePart(req *http.Request) (*multipart.Part, error) {
	mr, err := req.MultipartReader()
	if err != nil {
		return nil, nil
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, badRequest{msg: "malformed multipart body"}
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

type batchRequest struct {
	Frames       []json.RawMessage `json:"frames"`
	BatchInfo    any               `json:"batch_info"`
	Source       any               `json:"source"`
	Dimensions   any               `json:"dimensions"`
	FacialFrames any               `json:"facial_frames"`
}

// frameStrings keeps string entries; anything else becomes an empty frame
// that fails to decode on its own.
func frameStrings(items []json.RawMessage) []string {
	frames := make([]string, len(items))
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			frames[i] = s
		}
	}
	return frames
}

// POST /frames
func (r *Router) handleFrames(w http.ResponseWriter, req *http.Request) error {
	start := time.Now()
	requestID := middleware.RequestID(req.Header.Get(middleware.RequestIDHeader))
	req.Body = http.MaxBytesReader(w, req.Body, r.maxBody)

	var body batchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		r.log.Warn("invalid frames body", zap.String("request_id", requestID), zap.Error(err))
		writeJSON(w, http.StatusOK, analysisError{
			Error:          "Invalid JSON body",
			Status:         statusError,
			RequestID:      requestID,
			ProcessingTime: fmt.Sprintf("%.2fs", time.Since(start).Seconds()),
		})
		return nil
	}

	res, err := r.analyzer.AnalyzeBatch(req.Context(), appanalysis.AnalyzeBatchCommand{
		RequestID:    requestID,
		Frames:       frameStrings(body.Frames),
		Source:       middleware.SanitizeString(describe(body.Source)),
		BatchInfo:    describe(body.BatchInfo),
		Dimensions:   describe(body.Dimensions),
		FacialFrames: intFrom(body.FacialFrames),
	})
	return r.writeAnalysis(w, requestID, start, res, err)
}

// writeAnalysis renders a verdict or an analysis failure. Expected failures
// are HTTP 200 with an error field; a timeout is 503 so clients retry.
func (r *Router) writeAnalysis(w http.ResponseWriter, requestID string, start time.Time, res analysis.Result, err error) error {
	elapsed := fmt.Sprintf("%.2fs", time.Since(start).Seconds())

	if err != nil {
		msg, status, ok := analysisFailure(err)
		if !ok {
			return err
		}
		writeJSON(w, status, analysisError{
			Error:          msg,
			Status:         statusError,
			RequestID:      requestID,
			ProcessingTime: elapsed,
		})
		return nil
	}

	ids := res.RetainedFrameIDs
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, analysisResponse{
		Deepfake:       res.IsDeepfake,
		Confidence:     res.Confidence,
		DeepfakeFrames: res.DeepfakeFrameCount,
		FramesAnalyzed: res.FramesAnalyzed,
		FrameIDs:       ids,
		RequestID:      requestID,
		ProcessingTime: elapsed,
		Status:         statusSuccess,
	})
	return nil
}

func analysisFailure(err error) (string, int, bool) {
	switch {
	case errors.Is(err, analysis.ErrNoInput):
		return "No frames provided", http.StatusOK, true
	case errors.Is(err, analysis.ErrNoFramesAnalyzed):
		return "No frames could be analyzed", http.StatusOK, true
	case errors.Is(err, analysis.ErrUnreadableVideo):
		return "Cannot read video file", http.StatusOK, true
	case errors.Is(err, analysis.ErrAnalysisTimeout):
		return "Analysis timed out", http.StatusServiceUnavailable, true
	}
	return "", 0, false
}

// POST /feedback
func (r *Router) handleSubmitFeedback(w http.ResponseWriter, req *http.Request) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, req.Body, 1<<20))
	if err != nil {
		return err
	}

	id, err := r.feedback.Submit(req.Context(), raw)
	if errors.Is(err, feedback.ErrValidation) {
		writeJSON(w, http.StatusOK, feedbackResponse{Success: false, Error: err.Error()})
		return nil
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Success: true, FeedbackID: string(id)})
	return nil
}

// GET /feedback?page=&page_size=
func (r *Router) handleListFeedback(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	list, err := r.feedback.List(req.Context(),
		middleware.ParsePage(q.Get("page")),
		middleware.ParsePageSize(q.Get("page_size")),
	)
	if err != nil {
		return err
	}
	if list.Data == nil {
		list.Data = []*feedback.Record{}
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /evidence/{id}
func (r *Router) handleGetEvidence(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateFrameID(id); err != nil {
		return badRequest{msg: err.Error()}
	}

	frame, err := r.evidence.Get(req.Context(), evidence.FrameID(id))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, frame)
	return nil
}

// GET /evidence/{id}/image
func (r *Router) handleGetEvidenceImage(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateFrameID(id); err != nil {
		return badRequest{msg: err.Error()}
	}

	frame, rc, err := r.evidence.OpenImage(req.Context(), evidence.FrameID(id))
	if err != nil {
		return err
	}
	defer rc.Close()

	w.Header().Set("Content-Type", frame.ContentType)
	if frame.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(frame.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		r.log.Warn("evidence image write interrupted", zap.String("frame_id", id), zap.Error(err))
	}
	return nil
}
