package scheduler

import "testing"

func TestPredictedAbandonmentsRequiresMinimumSample(t *testing.T) {
	if got := predictedAbandonments(100, 4); got != 0 {
		t.Errorf("predictedAbandonments with <5 recent samples = %d, want 0", got)
	}
}

func TestPredictedAbandonmentsScalesWithPosition(t *testing.T) {
	got := predictedAbandonments(100, 20)
	if got <= 0 {
		t.Errorf("predictedAbandonments(100, 20) = %d, want > 0", got)
	}
}

func TestEstimateWaitSecondsNeverBelowOne(t *testing.T) {
	got := estimateWaitSeconds(1, 10, 0, 0, 0)
	if got < 1 {
		t.Errorf("estimateWaitSeconds = %d, want >= 1", got)
	}
}

func TestEstimateWaitSecondsGrowsWithPosition(t *testing.T) {
	near := estimateWaitSeconds(1, 1, 3, 8, 0)
	far := estimateWaitSeconds(50, 1, 3, 8, 0)
	if far <= near {
		t.Errorf("estimateWaitSeconds(50) = %d, want > estimateWaitSeconds(1) = %d", far, near)
	}
}

func TestEstimateWaitSecondsClampsMaxConcurrentToOne(t *testing.T) {
	a := estimateWaitSeconds(10, 0, 3, 8, 0)
	b := estimateWaitSeconds(10, 1, 3, 8, 0)
	if a != b {
		t.Errorf("maxConcurrent<=0 should be clamped to 1: got %d and %d", a, b)
	}
}
