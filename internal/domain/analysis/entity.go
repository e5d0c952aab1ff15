package analysis

// FrameScore is the classifier output for one frame of a request.
type FrameScore struct {
	Index int
	Score float64
}

// Verdict is the aggregate decision over every scored frame of a request.
type Verdict struct {
	IsDeepfake         bool
	Confidence         float64
	DeepfakeRatio      float64
	DeepfakeFrameCount int
	FramesAnalyzed     int
}

// ScoreStats summarises the raw score distribution; logged, never returned.
type ScoreStats struct {
	Mean float64
	Min  float64
	Max  float64
}

// Result is the outcome of one analysis request (video or batch).
type Result struct {
	Verdict
	FramesReceived   int
	RetainedFrameIDs []string
	Stats            ScoreStats
}

// Pipeline names the intake that produced a request.
type Pipeline string

const (
	PipelineVideo Pipeline = "video"
	PipelineBatch Pipeline = "batch"
)
