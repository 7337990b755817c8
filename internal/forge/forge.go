// Package forge orchestrates a batch of generation jobs for one playable:
// one job per asset slot, credit-gated, sequentially submitted, with
// per-slot retry and a session-wide reference image for style consistency.
package forge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/playable-forge/internal/analysis"
	"github.com/p-blackswan/playable-forge/internal/config"
	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
	"github.com/p-blackswan/playable-forge/internal/layerapi"
	"github.com/p-blackswan/playable-forge/internal/metrics"
	"github.com/p-blackswan/playable-forge/internal/retry"
)

// Generator is the slice of the generation client the forger needs.
type Generator interface {
	GetStyle(ctx context.Context, styleID string) (layerapi.Style, error)
	Submit(ctx context.Context, prompt, styleID, referenceID string) (*layerapi.Generation, error)
	AwaitCompletion(ctx context.Context, jobID string, timeout time.Duration) (*layerapi.Generation, error)
	DownloadImage(ctx context.Context, url string) ([]byte, error)
}

// CreditChecker gates the batch on the workspace balance.
type CreditChecker interface {
	Check(ctx context.Context) (*layerapi.Workspace, error)
}

// Asset is the resolved output of one slot's generation attempts. Invalid
// assets carry the last error; they never abort the batch.
type Asset struct {
	SlotKey      string
	Category     string
	Prompt       string
	JobID        string
	ImageID      string
	ImageURL     string
	Data         []byte
	Transparency bool
	Valid        bool
	Error        string
	Attempts     int
	Duration     time.Duration
}

// Session is the immutable record of one forge batch.
type Session struct {
	ID              string
	StyleID         string
	ReferenceID     string
	StartingBalance int
	Assets          []Asset
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Asset lookup by slot key.
func (s *Session) Asset(slotKey string) (Asset, bool) {
	for _, a := range s.Assets {
		if a.SlotKey == slotKey {
			return a, true
		}
	}
	return Asset{}, false
}

// ValidCount returns how many assets generated successfully.
func (s *Session) ValidCount() int {
	n := 0
	for _, a := range s.Assets {
		if a.Valid {
			n++
		}
	}
	return n
}

// Forger runs forge sessions.
type Forger struct {
	client      Generator
	guard       CreditChecker
	backoff     retry.Config // between per-slot retry attempts
	pollTimeout time.Duration
	slotDelay   time.Duration
	metrics     *metrics.Metrics // optional
	logger      zerolog.Logger
}

// New creates a forger. m may be nil.
func New(client Generator, guard CreditChecker, cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *Forger {
	return &Forger{
		client:      client,
		guard:       guard,
		backoff:     cfg.ForgeBackoff(),
		pollTimeout: cfg.PollTimeout,
		slotDelay:   cfg.ForgeSlotDelay,
		metrics:     m,
		logger:      logger.With().Str("component", "forge").Logger(),
	}
}

// SetSleep injects the sleep function used between slots and retry attempts
// (for testing).
func (f *Forger) SetSleep(fn retry.SleepFunc) {
	f.backoff.Sleep = fn
}

func (f *Forger) sleep(ctx context.Context, d time.Duration) error {
	if f.backoff.Sleep != nil {
		return f.backoff.Sleep(ctx, d)
	}
	return retry.Sleep(ctx, d)
}

// ForgeAll resolves every slot prompt into an Asset. It errors only on
// batch-level preconditions: a style that is not ready or an insufficient
// balance. Individual slot failures degrade to invalid assets and the
// batch continues; the returned session always has exactly one asset per
// requested slot, in request order.
func (f *Forger) ForgeAll(ctx context.Context, prompts []analysis.SlotPrompt, styleID string) (*Session, error) {
	style, err := f.client.GetStyle(ctx, styleID)
	if err != nil {
		return nil, err
	}
	if !style.Ready() {
		return nil, &ferrors.InvalidStyleError{StyleID: styleID, Status: style.Status}
	}

	ws, err := f.guard.Check(ctx)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:              uuid.NewString(),
		StyleID:         styleID,
		StartingBalance: ws.Balance,
		StartedAt:       time.Now().UTC(),
		Assets:          make([]Asset, 0, len(prompts)),
	}
	tracker := &Tracker{}

	f.logger.Info().
		Str("session_id", session.ID).
		Str("style_id", styleID).
		Int("slots", len(prompts)).
		Int("balance", ws.Balance).
		Msg("forge session started")

	for i, sp := range prompts {
		// One slot at a time, with a small gap, so the backend's rate
		// limiter never sees a burst.
		if i > 0 && f.slotDelay > 0 {
			if err := f.sleep(ctx, f.slotDelay); err != nil {
				return nil, err
			}
		}

		asset := f.forgeSlot(ctx, sp, styleID, tracker)
		session.Assets = append(session.Assets, asset)

		if f.metrics != nil {
			outcome := "success"
			if !asset.Valid {
				outcome = "failure"
			}
			f.metrics.RecordGeneration(asset.Category, outcome)
			if asset.Valid {
				f.metrics.ObserveGeneration(asset.Category, asset.Duration.Seconds())
			}
		}
	}

	session.ReferenceID = tracker.Reference()
	session.FinishedAt = time.Now().UTC()

	f.logger.Info().
		Str("session_id", session.ID).
		Int("valid", session.ValidCount()).
		Int("total", len(session.Assets)).
		Str("reference_id", session.ReferenceID).
		Msg("forge session finished")

	return session, nil
}

// forgeSlot runs up to MaxAttempts generations for one slot. The original
// prompt is used on every attempt except the last, which falls back to a
// stripped-down prompt; moderation rejections are the usual reason the
// fallback exists.
func (f *Forger) forgeSlot(ctx context.Context, sp analysis.SlotPrompt, styleID string, tracker *Tracker) Asset {
	asset := Asset{
		SlotKey:      sp.Slot.Key,
		Category:     sp.Slot.Category,
		Prompt:       sp.Prompt,
		Transparency: sp.Slot.Transparency,
	}

	maxAttempts := f.backoff.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		prompt := sp.Prompt
		if attempt == maxAttempts-1 && maxAttempts > 1 {
			prompt = analysis.SimplifyPrompt(sp.Slot)
		}

		asset.Attempts = attempt + 1
		start := time.Now()

		gen, err := f.generate(ctx, prompt, styleID, tracker.Reference())
		if err == nil {
			data, dlErr := f.client.DownloadImage(ctx, gen.ImageURL)
			if dlErr == nil {
				asset.Prompt = prompt
				asset.JobID = gen.JobID
				asset.ImageID = gen.ImageID
				asset.ImageURL = gen.ImageURL
				asset.Data = data
				asset.Valid = true
				asset.Duration = time.Since(start)
				tracker.RecordIfFirst(gen.ImageID)
				return asset
			}
			err = dlErr
		}

		lastErr = err
		f.logger.Warn().
			Str("slot", sp.Slot.Key).
			Int("attempt", attempt+1).
			Err(err).
			Msg("slot generation attempt failed")

		if !ferrors.IsRetryable(err) {
			break
		}
		if attempt < maxAttempts-1 {
			if sleepErr := f.backoff.SleepFor(ctx, attempt); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	asset.Valid = false
	if lastErr != nil {
		asset.Error = lastErr.Error()
	}
	return asset
}

func (f *Forger) generate(ctx context.Context, prompt, styleID, referenceID string) (*layerapi.Generation, error) {
	gen, err := f.client.Submit(ctx, prompt, styleID, referenceID)
	if err != nil {
		return nil, err
	}
	if gen.Status == layerapi.StatusCompleted && gen.ImageURL != "" {
		return gen, nil
	}
	return f.client.AwaitCompletion(ctx, gen.JobID, f.pollTimeout)
}
