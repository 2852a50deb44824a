package trainer

// learningRateAt returns the learning rate for a 1-indexed global step
// under linear warmup followed by linear decay to zero
func learningRateAt(step, totalSteps, warmupSteps int, base float64) float64 {
	if totalSteps < 1 || step < 1 {
		return base
	}
	if warmupSteps > 0 && step <= warmupSteps {
		return base * float64(step) / float64(warmupSteps)
	}
	if totalSteps <= warmupSteps {
		return base
	}
	lr := base * float64(totalSteps-step) / float64(totalSteps-warmupSteps)
	if lr < 0 {
		return 0
	}
	return lr
}
