package httpserver

import (
	"fmt"
	"math"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type analysisResponse struct {
	Deepfake       bool     `json:"deepfake"`
	Confidence     float64  `json:"confidence"`
	DeepfakeFrames int      `json:"deepfake_frames"`
	FramesAnalyzed int      `json:"frames_analyzed"`
	FrameIDs       []string `json:"frameIds"`
	RequestID      string   `json:"request_id,omitempty"`
	ProcessingTime string   `json:"processing_time,omitempty"`
	Status         string   `json:"status,omitempty"`
}

// analysisError carries no verdict fields.
type analysisError struct {
	Error          string `json:"error"`
	Status         string `json:"status"`
	RequestID      string `json:"request_id,omitempty"`
	ProcessingTime string `json:"processing_time,omitempty"`
}

type feedbackResponse struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedback_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// describe flattens a free-form JSON value into a log-friendly string.
func describe(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func intFrom(v any) int {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int(t)
	case string:
		var n int
		_, _ = fmt.Sscan(t, &n)
		return n
	}
	return 0
}
