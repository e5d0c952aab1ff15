package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSamplingPolicy_ShouldRetain(t *testing.T) {
	p := DefaultSamplingPolicy()

	tests := []struct {
		index, retained int
		want            bool
	}{
		{0, 0, true},
		{7, 7, true},
		{19, 19, true},
		{21, 20, false},
		{30, 25, true},
		{31, 26, false},
		{33, 3, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.ShouldRetain(tt.index, tt.retained), "index=%d retained=%d", tt.index, tt.retained)
	}
}

func TestSampler_LongStream(t *testing.T) {
	const frames = 205
	s := NewSampler(DefaultSamplingPolicy())

	var kept []int
	for i := 0; i < frames; i++ {
		if s.Offer(i) {
			kept = append(kept, i)
		}
	}

	var want []int
	for i := 0; i < 20; i++ {
		want = append(want, i)
	}
	for i := 20; i <= 200; i += 10 {
		want = append(want, i)
	}

	assert.Equal(t, want, kept)
	assert.Len(t, kept, 39)
	assert.Equal(t, 39, s.Retained())
}

func TestSampler_ShortStreamKeepsEverything(t *testing.T) {
	s := NewSampler(DefaultSamplingPolicy())
	for i := 0; i < 12; i++ {
		assert.True(t, s.Offer(i))
	}
	assert.Equal(t, 12, s.Retained())
}

func TestSampler_SparseIndices(t *testing.T) {
	// Skipped indices (undecodable frames) never reach the sampler.
	s := NewSampler(SamplingPolicy{Every: 10, MinRetained: 2})
	assert.True(t, s.Offer(3))
	assert.True(t, s.Offer(5))
	assert.False(t, s.Offer(6))
	assert.True(t, s.Offer(10))
	assert.False(t, s.Offer(11))
	assert.Equal(t, 3, s.Retained())
}
