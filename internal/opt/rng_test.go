package opt

import (
	"math"
	"testing"
)

func TestNormalSourceDeterministic(t *testing.T) {
	a := NewNormalSource(123)
	b := NewNormalSource(123)

	for i := 0; i < 100; i++ {
		va, vb := a.NormalVariate(), b.NormalVariate()
		if va != vb {
			t.Fatalf("draw %d differs: %v vs %v", i, va, vb)
		}
	}
}

func TestNormalSourceMoments(t *testing.T) {
	src := NewNormalSource(42)

	const n = 100000
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		v := src.NormalVariate()
		sum += v
		sumSq += v * v
	}

	mean := sum / n
	variance := sumSq/n - mean*mean

	if math.Abs(mean) > 0.02 {
		t.Errorf("sample mean = %v, expected near 0", mean)
	}
	if math.Abs(variance-1) > 0.05 {
		t.Errorf("sample variance = %v, expected near 1", variance)
	}
}
