package trainer

import (
	"math"
	"testing"
)

func TestLearningRateWarmupAndDecay(t *testing.T) {
	const base = 2e-5
	total, warmup := 100, 10

	// Linear ramp over the warmup steps
	if got := learningRateAt(1, total, warmup, base); math.Abs(got-base/10) > 1e-12 {
		t.Errorf("Step 1: expected %g, got %g", base/10, got)
	}
	if got := learningRateAt(5, total, warmup, base); math.Abs(got-base/2) > 1e-12 {
		t.Errorf("Step 5: expected %g, got %g", base/2, got)
	}
	if got := learningRateAt(10, total, warmup, base); math.Abs(got-base) > 1e-12 {
		t.Errorf("Step 10: expected peak %g, got %g", base, got)
	}

	// Linear decay down to zero at the final step
	if got := learningRateAt(55, total, warmup, base); math.Abs(got-base/2) > 1e-12 {
		t.Errorf("Step 55: expected %g, got %g", base/2, got)
	}
	if got := learningRateAt(100, total, warmup, base); got != 0 {
		t.Errorf("Step 100: expected 0, got %g", got)
	}

	// Extra steps beyond the nominal total clamp at zero
	if got := learningRateAt(105, total, warmup, base); got != 0 {
		t.Errorf("Step 105: expected 0, got %g", got)
	}
}

func TestLearningRateWithoutWarmup(t *testing.T) {
	const base = 1e-3
	if got := learningRateAt(1, 10, 0, base); math.Abs(got-base*0.9) > 1e-12 {
		t.Errorf("Step 1: expected %g, got %g", base*0.9, got)
	}
	if got := learningRateAt(10, 10, 0, base); got != 0 {
		t.Errorf("Step 10: expected 0, got %g", got)
	}
}
