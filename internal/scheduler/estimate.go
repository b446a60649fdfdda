package scheduler

import "math"

// predictedAbandonments estimates how many of the pos requests ahead of a
// given one will cancel before being dispatched, from recent cancellation
// history (spec.md §4.D "Wait-time estimation"). Below 5 observed
// abandonments in the lookback window the prediction is 0 — too few
// samples to extrapolate from.
func predictedAbandonments(pos int, recentCount int) int {
	if recentCount < 5 {
		return 0
	}
	r := math.Min(0.2, float64(recentCount)/math.Max(10, float64(pos)))
	return int(math.Floor(float64(pos) * r * 0.5))
}

// estimateWaitSeconds implements the batch/position arithmetic of
// spec.md §4.D: fold the predicted abandonments into an effective
// position, then walk it forward by whole cooldown-spaced batches plus a
// fractional batch at the average processing time.
func estimateWaitSeconds(pos int, maxConcurrent int, cooldownSeconds float64, avgProcessingTime float64, recentAbandonments1800 int) int {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	base := avgProcessingTime + cooldownSeconds/float64(maxConcurrent)

	effPos := pos - predictedAbandonments(pos, recentAbandonments1800)
	if effPos < 1 {
		effPos = 1
	}

	batch := effPos / maxConcurrent
	pib := effPos % maxConcurrent
	if pib == 0 {
		pib = maxConcurrent
		batch--
	}

	est := float64(batch)*cooldownSeconds + float64(pib)*base
	if est < 1 {
		est = 1
	}
	return int(est)
}
