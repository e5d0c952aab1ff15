package evidence

import "time"

// FrameID identifies a retained evidence frame.
type FrameID string

// Frame is a retained video frame kept for human feedback and retraining.
// Once saved it is never modified.
type Frame struct {
	ID           FrameID   `json:"id"`
	ObjectKey    string    `json:"object_key"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Score        float64   `json:"prediction"`
	ModelVersion string    `json:"model_version"`
	FrameIndex   int       `json:"frame_index"`
	RequestID    string    `json:"request_id"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"timestamp"`
}

// ObjectKeyFor is the image object key used for a frame id.
func ObjectKeyFor(id FrameID) string {
	return "frames/" + string(id) + ".jpg"
}
