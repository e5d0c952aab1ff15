package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_analyses_total",
		Help: "Analysis requests by pipeline and outcome",
	}, []string{"pipeline", "outcome"})

	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_verdicts_total",
		Help: "Verdicts returned, by pipeline and verdict",
	}, []string{"pipeline", "verdict"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deepfake_analysis_duration_seconds",
		Help:    "Wall-clock duration of one analysis request",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"pipeline"})

	FramesAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_frames_analyzed_total",
		Help: "Frames that produced a valid score",
	}, []string{"pipeline"})

	FramesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_frames_skipped_total",
		Help: "Frames dropped before aggregation, by reason",
	}, []string{"pipeline", "reason"})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deepfake_inference_duration_seconds",
		Help:    "Classifier latency per frame",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	EvidenceStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepfake_evidence_stored_total",
		Help: "Evidence frames persisted",
	})

	EvidenceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_evidence_failures_total",
		Help: "Evidence frames that failed to persist, by stage",
	}, []string{"stage"})

	FeedbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_feedback_total",
		Help: "Feedback submissions by outcome",
	}, []string{"outcome"})

	RetrainingPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepfake_retraining_published_total",
		Help: "Retraining messages by publish outcome",
	}, []string{"outcome"})

	ActiveAnalyses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deepfake_active_analyses",
		Help: "Analysis requests currently running",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the per-client limiter",
	})
)
