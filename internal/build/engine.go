package build

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/playable-forge/internal/config"
	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
	"github.com/p-blackswan/playable-forge/internal/metrics"
)

// Runner executes one build request. *Pipeline is the production
// implementation.
type Runner interface {
	Run(ctx context.Context, req Request, progress func(Stage)) (*Result, error)
}

// CompletionNotifier is called after a build reaches a terminal state.
type CompletionNotifier interface {
	NotifyBuildCompletion(b Build)
}

// Engine manages the lifecycle of async builds.
type Engine struct {
	builds    sync.Map // id → *Build
	buildList []*Build // ordered for listing
	listMu    sync.RWMutex
	queue     chan *Build
	workers   int
	timeout   time.Duration
	runner    Runner
	notifier  CompletionNotifier
	metrics   *metrics.Metrics // optional
	logger    zerolog.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   atomic.Bool
}

// NewEngine creates a build engine. m may be nil.
func NewEngine(cfg *config.Config, runner Runner, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	workers := cfg.BuildWorkers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.BuildQueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	timeout := cfg.BuildTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}

	return &Engine{
		queue:   make(chan *Build, queueSize),
		workers: workers,
		timeout: timeout,
		runner:  runner,
		metrics: m,
		logger:  logger.With().Str("component", "build_engine").Logger(),
	}
}

// SetNotifier sets the completion notifier.
func (e *Engine) SetNotifier(n CompletionNotifier) {
	e.notifier = n
}

// Start launches worker goroutines.
func (e *Engine) Start(ctx context.Context) {
	if e.running.Swap(true) {
		return // already running
	}

	ctx, e.cancel = context.WithCancel(ctx)

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i)
	}

	e.logger.Info().Int("workers", e.workers).Msg("build engine started")
}

// Stop gracefully shuts down the engine.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info().Msg("build engine stopped")
}

// Submit validates the request, creates a build, and enqueues it.
func (e *Engine) Submit(req Request) (*Build, error) {
	if err := req.Analysis.Validate(); err != nil {
		return nil, fmt.Errorf("game analysis: %w", err)
	}
	if req.StyleID == "" {
		return nil, fmt.Errorf("%w: style_id is required", ferrors.ErrInvalidInput)
	}

	b := &Build{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    StatusPending,
		Stage:     StageQueued,
		CreatedAt: time.Now().UTC(),
	}

	e.builds.Store(b.ID, b)
	e.listMu.Lock()
	e.buildList = append(e.buildList, b)
	e.listMu.Unlock()

	// Take snapshot before enqueueing (a worker may pick it up immediately).
	snap := b.Snapshot()

	select {
	case e.queue <- b:
		e.logger.Info().
			Str("build_id", b.ID).
			Str("game", req.Analysis.GameName).
			Str("mechanic", string(req.Analysis.Mechanic)).
			Msg("build enqueued")
	default:
		now := time.Now().UTC()
		b.mu.Lock()
		b.Status = StatusFailed
		b.Error = "build queue is full"
		b.CompletedAt = &now
		b.mu.Unlock()
		snap = b.Snapshot()
		return &snap, fmt.Errorf("build queue is full")
	}

	return &snap, nil
}

// Get retrieves a build by ID. Returns a snapshot safe for concurrent use.
func (e *Engine) Get(id string) (*Build, bool) {
	val, ok := e.builds.Load(id)
	if !ok {
		return nil, false
	}
	snap := val.(*Build).Snapshot()
	return &snap, true
}

// Cancel cancels a pending build. Running builds cannot be interrupted.
func (e *Engine) Cancel(id string) (*Build, error) {
	val, ok := e.builds.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: build %s", ferrors.ErrNotFound, id)
	}

	b := val.(*Build)
	b.mu.Lock()
	if b.Status != StatusPending {
		status := b.Status
		b.mu.Unlock()
		snap := b.Snapshot()
		return &snap, fmt.Errorf("build %s is in status %s, only pending builds can be cancelled", id, status)
	}

	now := time.Now().UTC()
	b.Status = StatusCancelled
	b.CompletedAt = &now
	b.mu.Unlock()

	e.logger.Info().Str("build_id", id).Msg("build cancelled")
	snap := b.Snapshot()
	return &snap, nil
}

// List returns builds matching the query, newest first. Returns snapshots.
func (e *Engine) List(q ListQuery) ([]*Build, int) {
	e.listMu.RLock()
	defer e.listMu.RUnlock()

	var filtered []*Build
	for _, b := range e.buildList {
		b.mu.RLock()
		status := b.Status
		mechanic := b.Request.Analysis.Mechanic
		callerID := b.Request.CallerID
		b.mu.RUnlock()

		if q.Status != "" && string(status) != q.Status {
			continue
		}
		if q.Mechanic != "" && string(mechanic) != q.Mechanic {
			continue
		}
		if q.CallerID != "" && callerID != q.CallerID {
			continue
		}
		filtered = append(filtered, b)
	}

	total := len(filtered)

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	reversed := make([]*Build, len(filtered))
	for i, b := range filtered {
		reversed[len(filtered)-1-i] = b
	}

	if offset >= len(reversed) {
		return nil, total
	}
	end := offset + limit
	if end > len(reversed) {
		end = len(reversed)
	}

	result := make([]*Build, end-offset)
	for i, b := range reversed[offset:end] {
		snap := b.Snapshot()
		result[i] = &snap
	}
	return result, total
}

// Stats summarizes every build the engine has seen.
func (e *Engine) Stats() Stats {
	e.listMu.RLock()
	defer e.listMu.RUnlock()

	stats := Stats{
		TotalBuilds: len(e.buildList),
		ByStatus:    make(map[string]int),
		ByMechanic:  make(map[string]int),
	}

	var totalDuration int64
	var completed int64
	for _, b := range e.buildList {
		b.mu.RLock()
		stats.ByStatus[string(b.Status)]++
		stats.ByMechanic[string(b.Request.Analysis.Mechanic)]++
		if b.Status == StatusCompleted && b.StartedAt != nil && b.CompletedAt != nil {
			totalDuration += b.CompletedAt.Sub(*b.StartedAt).Milliseconds()
			completed++
		}
		b.mu.RUnlock()
	}
	if completed > 0 {
		stats.AvgDurationMs = totalDuration / completed
	}
	return stats
}

func (e *Engine) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	log := e.logger.With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("worker stopping")
			return
		case b, ok := <-e.queue:
			if !ok {
				return
			}
			e.execute(ctx, b, log)
		}
	}
}

func (e *Engine) execute(ctx context.Context, b *Build, log zerolog.Logger) {
	b.mu.RLock()
	if b.Status == StatusCancelled {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	now := time.Now().UTC()
	b.mu.Lock()
	b.Status = StatusRunning
	b.StartedAt = &now
	b.mu.Unlock()

	log.Info().
		Str("build_id", b.ID).
		Str("game", b.Request.Analysis.GameName).
		Msg("executing build")

	buildCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.runner.Run(buildCtx, b.Request, func(s Stage) {
		b.mu.Lock()
		b.Stage = s
		b.mu.Unlock()
	})
	completed := time.Now().UTC()

	b.mu.Lock()
	b.CompletedAt = &completed
	b.Stage = StageDone
	if err != nil {
		b.Status = StatusFailed
		b.Error = err.Error()
	} else {
		b.Status = StatusCompleted
		b.Result = result
	}
	mechanic := string(b.Request.Analysis.Mechanic)
	status := b.Status
	b.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("build_id", b.ID).Msg("build failed")
	} else {
		log.Info().
			Str("build_id", b.ID).
			Int("size_bytes", result.SizeBytes).
			Bool("valid", result.Valid).
			Msg("build completed")
	}

	if e.metrics != nil {
		e.metrics.RecordBuild(mechanic, string(status))
	}
	if e.notifier != nil {
		go e.notifier.NotifyBuildCompletion(b.Snapshot())
	}
}
