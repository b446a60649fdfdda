package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bdrail/matrixsched/pkg/models"
)

// HealthMonitor watches the recent failure rate and trips as an
// operator signal only — it never gates dispatch. Adapted from the
// teacher's load-test circuit breaker (internal/circuitbreaker/breaker.go),
// which stopped an in-flight attack; here a "failure" is a completed
// request landing in status=failed, and tripping only latches a flag
// and reason, read through Scheduler.Health, rather than halting the
// queue (spec.md §9:
// cancelling a processing request intentionally does not pre-empt it,
// and by the same principle this scheduler never self-halts).
type HealthMonitor struct {
	cfg models.CircuitBreakerConfig

	mu      sync.Mutex
	tripped int32
	reason  string

	total  int64
	failed int64
}

// NewHealthMonitor builds a monitor from cfg. A zero-value cfg.Metric
// disables it: Record and Tripped become no-ops.
func NewHealthMonitor(cfg models.CircuitBreakerConfig) *HealthMonitor {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 100
	}
	return &HealthMonitor{cfg: cfg}
}

// Record accounts for one completed request's outcome.
func (h *HealthMonitor) Record(success bool) {
	if h == nil || h.cfg.Metric == "" {
		return
	}
	atomic.AddInt64(&h.total, 1)
	if !success {
		atomic.AddInt64(&h.failed, 1)
	}
	h.evaluate()
}

func (h *HealthMonitor) evaluate() {
	if atomic.LoadInt32(&h.tripped) == 1 {
		return
	}

	total := atomic.LoadInt64(&h.total)
	failed := atomic.LoadInt64(&h.failed)
	if total < h.cfg.MinSamples {
		return
	}

	var current float64
	switch h.cfg.Metric {
	case "failures":
		current = float64(failed)
	default: // "errors", "error_rate"
		if h.cfg.IsPercent {
			current = float64(failed) / float64(total) * 100
		} else {
			current = float64(failed) / float64(total)
		}
	}

	var trip bool
	switch h.cfg.Operator {
	case ">":
		trip = current > h.cfg.Threshold
	case ">=":
		trip = current >= h.cfg.Threshold
	case "<":
		trip = current < h.cfg.Threshold
	case "<=":
		trip = current <= h.cfg.Threshold
	}
	if !trip {
		return
	}

	if atomic.CompareAndSwapInt32(&h.tripped, 0, 1) {
		h.mu.Lock()
		h.reason = fmt.Sprintf("%s %.2f crossed threshold %.2f", h.cfg.Metric, current, h.cfg.Threshold)
		h.mu.Unlock()
	}
}

// Tripped reports whether the failure-rate threshold has been crossed.
func (h *HealthMonitor) Tripped() bool {
	if h == nil {
		return false
	}
	return atomic.LoadInt32(&h.tripped) == 1
}

// Reason returns the trip explanation, empty if not tripped.
func (h *HealthMonitor) Reason() string {
	if h == nil {
		return ""
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}
