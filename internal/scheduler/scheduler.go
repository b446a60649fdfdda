// Package scheduler implements the Request Scheduler (Component D,
// spec.md §4.D): a single process-wide FIFO queue, a cooldown-paced
// dispatcher, a retry envelope around the worker call, and the
// background reapers that keep the tables from growing without bound.
//
// A single *sync.Mutex guards every table (queue order, entries,
// results, abandonment history, processing-time ring) per spec.md §5's
// shared-resource policy; it is never held across a sleep or network
// call.
package scheduler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/bdrail/matrixsched/internal/upstream"
	"github.com/bdrail/matrixsched/pkg/models"
	"github.com/google/uuid"
)

// Worker computes a matrix for one request. The matrix engine satisfies
// this signature directly.
type Worker func(ctx context.Context, params models.MatrixParams) (*models.Matrix, error)

const (
	processingRingSize    = 50
	abandonmentRingSize   = 100
	abandonmentWindow     = 3600 * time.Second
	predictionWindow      = 1800 * time.Second
	terminalResultTTL     = 30 * time.Minute
	initialAvgProcessing  = 8.0
	maxRetryAttempts      = 3
)

type entry struct {
	id            string
	params        models.MatrixParams
	worker        Worker
	status        models.RequestStatus
	createdAt     time.Time
	enqueuedAt    time.Time
	lastHeartbeat time.Time
	errorMessage  string
}

// Scheduler is the single long-lived, owned queue instance constructed
// at startup and injected into the front-end handlers (spec.md §9:
// "Global singleton queue becomes a single long-lived owned instance").
type Scheduler struct {
	cfg models.SchedulerConfig

	mu              sync.Mutex
	queueIDs        []string
	entries         map[string]*entry
	results         map[string]*models.Result
	abandonments    []models.AbandonmentRecord
	processingRing  []time.Duration
	avgProcessing   float64
	lastBatchStart  time.Time

	// latencyHist tracks percentile processing-time data, read through
	// LatencyPercentiles; it is supplementary to avgProcessing, which is
	// the spec's own ring-mean figure, and is not part of the /stats
	// response.
	latencyHist *hdrhistogram.Histogram
	health      *HealthMonitor

	wakeDispatch chan struct{}
}

// New constructs a Scheduler. Call Run in its own goroutine to start
// dispatching.
func New(cfg models.SchedulerConfig) *Scheduler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		cfg:           cfg,
		entries:       make(map[string]*entry),
		results:       make(map[string]*models.Result),
		avgProcessing: initialAvgProcessing,
		latencyHist:   hdrhistogram.New(1, 300_000_000, 3),
		wakeDispatch:  make(chan struct{}, 1),
	}
}

// WithHealthMonitor attaches the optional side-channel failure-rate
// monitor (spec.md §9 design notes; SPEC_FULL.md §4.D). Returns s for
// chaining at construction time.
func (s *Scheduler) WithHealthMonitor(h *HealthMonitor) *Scheduler {
	s.health = h
	return s
}

// Health reports the side-channel health monitor's current state.
// Neither the /stats endpoint nor the monitor TUI reads it. ok is false
// if no monitor was configured.
func (s *Scheduler) Health() (tripped bool, reason string, ok bool) {
	if s.health == nil {
		return false, "", false
	}
	return s.health.Tripped(), s.health.Reason(), true
}

// Submit enqueues a request and returns its opaque id (spec.md §4.D submit).
func (s *Scheduler) Submit(worker Worker, params models.MatrixParams) string {
	id := uuid.New().String()
	now := time.Now()

	s.mu.Lock()
	s.queueIDs = append(s.queueIDs, id)
	s.entries[id] = &entry{
		id:            id,
		params:        params,
		worker:        worker,
		status:        models.StatusQueued,
		createdAt:     now,
		enqueuedAt:    now,
		lastHeartbeat: now,
	}
	s.mu.Unlock()

	s.nudge()
	return id
}

// GetStatus returns a status snapshot, or ok=false if id is unknown
// (spec.md §4.D get_status).
func (s *Scheduler) GetStatus(id string) (models.StatusRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return models.StatusRecord{}, false
	}

	rec := models.StatusRecord{
		Status:       e.status,
		CreatedAt:    e.createdAt,
		LastHeartbeat: e.lastHeartbeat.Unix(),
		ErrorMessage: e.errorMessage,
	}

	if e.status == models.StatusQueued {
		pos := s.positionLocked(id)
		rec.Position = pos
		rec.EstimatedTime = estimateWaitSeconds(
			pos,
			s.cfg.MaxConcurrent,
			s.cfg.CooldownPeriod.Seconds(),
			s.avgProcessing,
			s.countAbandonmentsSinceLocked(predictionWindow),
		)
	}

	return rec, true
}

// positionLocked returns the 1-based index of id among live queued
// requests. Caller must hold s.mu.
func (s *Scheduler) positionLocked(id string) int {
	for i, qid := range s.queueIDs {
		if qid == id {
			return i + 1
		}
	}
	return 0
}

// GetResult returns and atomically clears a terminal result (spec.md
// §4.D get_result — "one-shot"). Returns ok=false if no result is ready.
func (s *Scheduler) GetResult(id string) (models.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.results[id]
	if !ok {
		return models.Result{}, false
	}
	delete(s.results, id)
	delete(s.entries, id)
	return *res, true
}

// Cancel removes id from every table. If it was still queued, an
// abandonment record is appended. Cancelling a request that is already
// processing detaches its eventual result: the worker runs to
// completion but its output is discarded (spec.md §4.D cancel).
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}

	if e.status == models.StatusQueued {
		pos := s.positionLocked(id)
		s.removeFromQueueLocked(id)
		s.abandonments = append(s.abandonments, models.AbandonmentRecord{
			Position:  pos,
			WaitTime:  time.Since(e.enqueuedAt),
			Timestamp: time.Now(),
		})
		if len(s.abandonments) > abandonmentRingSize {
			s.abandonments = s.abandonments[len(s.abandonments)-abandonmentRingSize:]
		}
	}

	delete(s.entries, id)
	delete(s.results, id)
	return true
}

// removeFromQueueLocked rebuilds queueIDs without id, preserving order
// (spec.md §5: "cancellation rebuilds the FIFO in-place under the
// mutex"). Caller must hold s.mu.
func (s *Scheduler) removeFromQueueLocked(id string) {
	out := s.queueIDs[:0]
	for _, qid := range s.queueIDs {
		if qid != id {
			out = append(out, qid)
		}
	}
	s.queueIDs = out
}

// Heartbeat refreshes id's liveness timestamp. Returns false for
// unknown ids — tolerant, never an error (spec.md §5).
func (s *Scheduler) Heartbeat(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.lastHeartbeat = time.Now()
	return true
}

// Stats reports the scheduler's externally visible counters (spec.md §4.D stats).
func (s *Scheduler) Stats() models.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	processing := 0
	for _, e := range s.entries {
		if e.status == models.StatusProcessing {
			processing++
		}
	}

	return models.Stats{
		Queued:             len(s.queueIDs),
		Processing:         processing,
		AvgProcessingTime:  s.avgProcessing,
		RecentAbandonments: s.countAbandonmentsSinceLocked(abandonmentWindow),
		QueueSize:          len(s.entries),
	}
}

// LatencyPercentiles exposes the HdrHistogram percentile view, outside
// the spec's own stats() contract; the /stats endpoint does not include
// it.
func (s *Scheduler) LatencyPercentiles() (p50, p90, p99 time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	toDur := func(us int64) time.Duration { return time.Duration(us) * time.Microsecond }
	return toDur(s.latencyHist.ValueAtQuantile(50)),
		toDur(s.latencyHist.ValueAtQuantile(90)),
		toDur(s.latencyHist.ValueAtQuantile(99))
}

func (s *Scheduler) countAbandonmentsSinceLocked(window time.Duration) int {
	cutoff := time.Now().Add(-window)
	count := 0
	for _, a := range s.abandonments {
		if a.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// ForceCleanup synchronously runs both reaper passes once (spec.md §4.D force_cleanup).
func (s *Scheduler) ForceCleanup() {
	s.reapStaleQueue()
	s.reapTerminalExpired()
}

func (s *Scheduler) reapStaleQueue() {
	s.mu.Lock()
	var stale []string
	cutoff := time.Now().Add(-s.cfg.HeartbeatTimeout)
	for _, id := range s.queueIDs {
		e := s.entries[id]
		if e != nil && e.lastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Cancel(id)
	}
}

func (s *Scheduler) reapTerminalExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-terminalResultTTL)
	for id, e := range s.entries {
		if (e.status == models.StatusCompleted || e.status == models.StatusFailed) && e.createdAt.Before(cutoff) {
			if _, stillUnfetched := s.results[id]; stillUnfetched {
				delete(s.results, id)
				delete(s.entries, id)
			}
		}
	}
}

func (s *Scheduler) recordProcessing(d time.Duration) {
	s.processingRing = append(s.processingRing, d)
	if len(s.processingRing) > processingRingSize {
		s.processingRing = s.processingRing[len(s.processingRing)-processingRingSize:]
	}
	var sum time.Duration
	for _, v := range s.processingRing {
		sum += v
	}
	s.avgProcessing = sum.Seconds() / float64(len(s.processingRing))
	_ = s.latencyHist.RecordValue(d.Microseconds())
}

func (s *Scheduler) nudge() {
	select {
	case s.wakeDispatch <- struct{}{}:
	default:
	}
}

// Run drives the dispatch loop until ctx is cancelled (spec.md §4.D
// "Dispatch state machine" and §5's dedicated scheduler thread). It
// also starts the stale-queue reaper on its own ticker. Call it once,
// in its own goroutine, from the process entry point.
func (s *Scheduler) Run(ctx context.Context) {
	reaperTicker := time.NewTicker(s.cfg.CleanupInterval)
	defer reaperTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reaperTicker.C:
				s.reapStaleQueue()
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		var remaining time.Duration
		if !s.lastBatchStart.IsZero() {
			elapsed := time.Since(s.lastBatchStart)
			if elapsed < s.cfg.CooldownPeriod {
				remaining = s.cfg.CooldownPeriod - elapsed
			}
		}
		s.mu.Unlock()

		if remaining > 0 {
			if !sleepCtx(ctx, remaining) {
				return
			}
			continue
		}

		batch := s.drainBatch()
		if len(batch) == 0 {
			s.reapTerminalExpired()
			if !sleepOrWake(ctx, s.wakeDispatch, time.Second) {
				return
			}
			continue
		}

		var wg sync.WaitGroup
		for _, id := range batch {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				s.runOne(ctx, id)
			}(id)
		}
		wg.Wait()
	}
}

// drainBatch atomically moves up to MaxConcurrent live queued ids to
// processing and returns them (spec.md §4.D dispatch step 2).
func (s *Scheduler) drainBatch() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.cfg.MaxConcurrent
	if n > len(s.queueIDs) {
		n = len(s.queueIDs)
	}
	if n == 0 {
		return nil
	}

	batch := make([]string, n)
	copy(batch, s.queueIDs[:n])
	s.queueIDs = s.queueIDs[n:]

	for _, id := range batch {
		if e, ok := s.entries[id]; ok {
			e.status = models.StatusProcessing
		}
	}
	s.lastBatchStart = time.Now()
	return batch
}

// runOne invokes the worker for id with the retry envelope and records
// the outcome, unless id was cancelled out from under it mid-flight
// (spec.md §4.D dispatch step 4, §5 cancellation semantics).
func (s *Scheduler) runOne(ctx context.Context, id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	params, worker := e.params, e.worker
	s.mu.Unlock()

	start := time.Now()
	matrix, err := invokeWithRetry(ctx, worker, params)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok = s.entries[id]
	if !ok || e.status != models.StatusProcessing {
		// Cancelled while processing: drop the result on the floor.
		return
	}

	s.recordProcessing(elapsed)

	if err != nil {
		e.status = models.StatusFailed
		e.errorMessage = err.Error()
		s.results[id] = &models.Result{Success: false, Error: err.Error()}
		s.health.Record(false)
		return
	}

	e.status = models.StatusCompleted
	s.results[id] = &models.Result{Success: true, Matrix: matrix, FormValues: params.FormValues}
	s.health.Record(true)
}

// invokeWithRetry implements spec.md §4.D's retry envelope: up to 3
// attempts, retrying only on the upstream client's tagged rate-limit /
// forbidden kinds (spec.md §9 design note — dispatch on the error's
// tag, not on a stringified message), with jittered backoff.
func invokeWithRetry(ctx context.Context, worker Worker, params models.MatrixParams) (*models.Matrix, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		matrix, err := worker(ctx, params)
		if err == nil {
			return matrix, nil
		}
		lastErr = err
		if !upstream.IsRetryable(err) || attempt == maxRetryAttempts {
			return nil, err
		}

		backoff := time.Duration(5+2*attempt)*time.Second + time.Duration(rand.Float64()*float64(2*time.Second))
		if !sleepCtx(ctx, backoff) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// sleepCtx sleeps for d or returns false early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleepOrWake sleeps up to d, waking early if wake fires (a fresh
// Submit), or returns false if ctx is cancelled.
func sleepOrWake(ctx context.Context, wake <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-wake:
		return true
	case <-ctx.Done():
		return false
	}
}
