package feedback

import "time"

// ID identifies a stored feedback record.
type ID string

// DefaultSource tags feedback that did not say where it came from.
const DefaultSource = "unknown"

// Record is an audit entry correlating a human judgement with a prior
// verdict and the evidence frames behind it. Referenced frame ids are not
// checked against the evidence store.
type Record struct {
	ID                  ID        `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	ReceivedAt          time.Time `json:"received_at"`
	PredictedIsDeepfake bool      `json:"prediction"`
	PredictedConfidence float64   `json:"confidence"`
	WasCorrect          bool      `json:"was_correct"`
	UserCorrection      *bool     `json:"user_correction"`
	FrameIDs            []string  `json:"frame_ids"`
	Source              string    `json:"source"`
}

// WantsRetraining reports whether the record carries a usable correction.
func (r *Record) WantsRetraining() bool {
	return !r.WasCorrect && r.UserCorrection != nil
}

// RetrainingRequest is published for records that carry a correction.
type RetrainingRequest struct {
	FeedbackID          ID       `json:"feedback_id"`
	PredictedIsDeepfake bool     `json:"predicted_deepfake"`
	UserCorrection      bool     `json:"user_correction"`
	FrameIDs            []string `json:"frame_ids"`
	Source              string   `json:"source"`
}

// PaginatedResult is one page of feedback records, newest first.
type PaginatedResult struct {
	Data     []*Record `json:"data"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}
