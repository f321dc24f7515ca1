package opt

import "math/rand"

// NormalSource is a seedable standard-normal variate source backed by
// math/rand. One instance must not be shared between concurrently running
// optimizers.
type NormalSource struct {
	rng *rand.Rand
}

// NewNormalSource creates a normal variate source with the given seed.
// Two sources created with the same seed produce identical draw sequences.
func NewNormalSource(seed int64) *NormalSource {
	return &NormalSource{rng: rand.New(rand.NewSource(seed))}
}

// NormalVariate returns one sample from the standard normal distribution.
func (s *NormalSource) NormalVariate() float64 {
	return s.rng.NormFloat64()
}
