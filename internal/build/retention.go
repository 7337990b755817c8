package build

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/playable-forge/internal/config"
)

// Sweeper periodically prunes finished builds that are older than the
// retention window, keeping the engine's in-memory index bounded.
type Sweeper struct {
	engine    *Engine
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
}

// NewSweeper creates a retention sweeper for the given engine.
func NewSweeper(cfg *config.Config, engine *Engine, logger zerolog.Logger) *Sweeper {
	retention := cfg.BuildRetention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	interval := cfg.RetentionSweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		engine:    engine,
		retention: retention,
		interval:  interval,
		logger:    logger.With().Str("component", "retention").Logger(),
	}
}

// Run ticks until the context is cancelled. Call in its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("retention", s.retention).
		Dur("interval", s.interval).
		Msg("retention sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("retention sweeper stopped")
			return
		case <-ticker.C:
			if n := s.engine.Prune(s.retention); n > 0 {
				s.logger.Info().Int("pruned", n).Msg("pruned finished builds")
			}
		}
	}
}

// Prune removes terminal builds whose completion time is older than the
// given window. Pending and running builds are never pruned.
func (e *Engine) Prune(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)

	e.listMu.Lock()
	defer e.listMu.Unlock()

	kept := make([]*Build, 0, len(e.buildList))
	pruned := 0
	for _, b := range e.buildList {
		b.mu.RLock()
		terminal := b.Status == StatusCompleted || b.Status == StatusFailed || b.Status == StatusCancelled
		completedAt := b.CompletedAt
		b.mu.RUnlock()

		if terminal && completedAt != nil && completedAt.Before(cutoff) {
			e.builds.Delete(b.ID)
			pruned++
			continue
		}
		kept = append(kept, b)
	}
	e.buildList = kept
	return pruned
}
