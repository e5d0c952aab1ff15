package analysis

const (
	DefaultSampleEvery = 10
	DefaultMinRetained = 20
)

// SamplingPolicy decides which processed frames are retained as evidence.
// A frame is kept when its index is a multiple of Every or when fewer than
// MinRetained frames have been kept so far in the request.
type SamplingPolicy struct {
	Every       int
	MinRetained int
}

func DefaultSamplingPolicy() SamplingPolicy {
	return SamplingPolicy{Every: DefaultSampleEvery, MinRetained: DefaultMinRetained}
}

func (p SamplingPolicy) ShouldRetain(frameIndex, retainedSoFar int) bool {
	if p.Every > 0 && frameIndex%p.Every == 0 {
		return true
	}
	return retainedSoFar < p.MinRetained
}

// Sampler applies a SamplingPolicy to a stream of frames. It must be fed in
// ascending index order; it is not safe for concurrent use.
type Sampler struct {
	policy   SamplingPolicy
	retained int
}

func NewSampler(p SamplingPolicy) *Sampler {
	return &Sampler{policy: p}
}

// Offer records the retention decision for frameIndex and reports it.
func (s *Sampler) Offer(frameIndex int) bool {
	if !s.policy.ShouldRetain(frameIndex, s.retained) {
		return false
	}
	s.retained++
	return true
}

func (s *Sampler) Retained() int { return s.retained }
