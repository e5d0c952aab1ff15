package analysis

import (
	"fmt"
	"math"
)

const (
	DefaultFrameThreshold    = 0.8
	DefaultMajorityThreshold = 0.5
)

// Thresholds holds the two decision constants of the aggregator.
// Scores are oriented so that lower means more likely synthetic.
type Thresholds struct {
	// Frame is the per-frame cut: a score strictly below it is a deepfake frame.
	Frame float64
	// Majority is the ratio the deepfake fraction must strictly exceed.
	Majority float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Frame: DefaultFrameThreshold, Majority: DefaultMajorityThreshold}
}

func (t Thresholds) Validate() error {
	if math.IsNaN(t.Frame) || math.IsInf(t.Frame, 0) {
		return fmt.Errorf("frame threshold must be finite, got %v", t.Frame)
	}
	if t.Majority < 0 || t.Majority > 1 || math.IsNaN(t.Majority) {
		return fmt.Errorf("majority threshold must be in [0,1], got %v", t.Majority)
	}
	return nil
}

// Aggregator turns the scores of one request into a Verdict. Both the video
// and the batch pipeline call the same Aggregator so the math cannot drift.
type Aggregator struct {
	thresholds Thresholds
}

func NewAggregator(t Thresholds) *Aggregator {
	return &Aggregator{thresholds: t}
}

func (a *Aggregator) Thresholds() Thresholds { return a.thresholds }

// Aggregate computes the verdict. The result depends only on the multiset of
// scores, never on their order.
func (a *Aggregator) Aggregate(scores []float64) (Verdict, error) {
	if len(scores) == 0 {
		return Verdict{}, ErrNoFramesAnalyzed
	}

	deepfakeFrames := 0
	for _, s := range scores {
		if s < a.thresholds.Frame {
			deepfakeFrames++
		}
	}

	total := len(scores)
	ratio := float64(deepfakeFrames) / float64(total)
	confidence := math.Min(1.0, math.Abs(ratio-a.thresholds.Majority)*2)

	return Verdict{
		IsDeepfake:         ratio > a.thresholds.Majority,
		Confidence:         confidence,
		DeepfakeRatio:      ratio,
		DeepfakeFrameCount: deepfakeFrames,
		FramesAnalyzed:     total,
	}, nil
}

// Stats returns mean/min/max of scores; zero value for an empty slice.
func Stats(scores []float64) ScoreStats {
	if len(scores) == 0 {
		return ScoreStats{}
	}
	st := ScoreStats{Min: scores[0], Max: scores[0]}
	sum := 0.0
	for _, s := range scores {
		sum += s
		if s < st.Min {
			st.Min = s
		}
		if s > st.Max {
			st.Max = s
		}
	}
	st.Mean = sum / float64(len(scores))
	return st
}
