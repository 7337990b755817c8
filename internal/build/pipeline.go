package build

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/playable-forge/internal/analysis"
	"github.com/p-blackswan/playable-forge/internal/assemble"
	"github.com/p-blackswan/playable-forge/internal/forge"
	"github.com/p-blackswan/playable-forge/internal/imaging"
	"github.com/p-blackswan/playable-forge/internal/metrics"
	"github.com/p-blackswan/playable-forge/internal/template"
)

// Forger is the slice of the forge orchestrator the pipeline needs.
type Forger interface {
	ForgeAll(ctx context.Context, prompts []analysis.SlotPrompt, styleID string) (*forge.Session, error)
}

// Pipeline runs one build end to end: resolve the template, forge the
// assets, optimize them, assemble the document.
type Pipeline struct {
	registry  *template.Registry
	forger    Forger
	optimizer *imaging.Optimizer
	assembler *assemble.Assembler
	metrics   *metrics.Metrics // optional
	logger    zerolog.Logger
}

// NewPipeline wires the pipeline stages. m may be nil.
func NewPipeline(registry *template.Registry, forger Forger, optimizer *imaging.Optimizer, assembler *assemble.Assembler, m *metrics.Metrics, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		registry:  registry,
		forger:    forger,
		optimizer: optimizer,
		assembler: assembler,
		metrics:   m,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes the pipeline. progress is invoked as each stage begins and
// may be nil. Precondition failures (bad analysis, credits, style) return
// an error; per-slot generation failures degrade to fallback assets.
func (p *Pipeline) Run(ctx context.Context, req Request, progress func(Stage)) (*Result, error) {
	advance := func(s Stage) {
		if progress != nil {
			progress(s)
		}
	}

	if err := req.Analysis.Validate(); err != nil {
		return nil, fmt.Errorf("game analysis: %w", err)
	}

	descriptor := p.registry.ResolveOrFallback(req.Analysis.Mechanic)
	prompts := analysis.BuildPrompts(descriptor, &req.Analysis)

	advance(StageForging)
	session, err := p.forger.ForgeAll(ctx, prompts, req.StyleID)
	if err != nil {
		return nil, err
	}

	advance(StageOptimizing)
	assets := make(map[string]assemble.Asset, len(session.Assets))
	summaries := make([]AssetSummary, 0, len(session.Assets))
	for _, a := range session.Assets {
		summary := AssetSummary{
			SlotKey:  a.SlotKey,
			Valid:    a.Valid,
			Attempts: a.Attempts,
			ImageID:  a.ImageID,
			Error:    a.Error,
		}
		if a.Valid {
			opt, optErr := p.optimizer.Optimize(a.Data)
			if optErr != nil {
				// An undecodable download degrades like a generation
				// failure: the slot falls back at assembly.
				summary.Valid = false
				summary.Error = optErr.Error()
				p.logger.Warn().Str("slot", a.SlotKey).Err(optErr).Msg("asset optimization failed")
			} else {
				assets[a.SlotKey] = assemble.Asset{
					SlotKey: a.SlotKey,
					DataURI: opt.DataURI,
					Valid:   true,
				}
			}
		}
		summaries = append(summaries, summary)
	}

	advance(StageAssembling)
	playable, err := p.assembler.Assemble(descriptor, assets, req.Config)
	if err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.ObservePlayableSize(playable.SizeBytes)
	}

	result := &Result{
		SessionID:            session.ID,
		Mechanic:             playable.Mechanic,
		ReferenceImageID:     session.ReferenceID,
		StartingBalance:      session.StartingBalance,
		Assets:               summaries,
		Document:             playable.Document,
		SizeBytes:            playable.SizeBytes,
		Valid:                playable.Valid,
		ValidationErrors:     playable.ValidationErrors,
		FallbackSlots:        playable.FallbackSlots,
		NetworkCompatibility: playable.NetworkCompatibility,
	}
	for _, s := range summaries {
		if s.Valid {
			result.ValidAssets++
		}
	}

	p.logger.Info().
		Str("session_id", session.ID).
		Str("mechanic", string(result.Mechanic)).
		Int("valid_assets", result.ValidAssets).
		Int("total_assets", len(summaries)).
		Int("size_bytes", result.SizeBytes).
		Bool("valid", result.Valid).
		Msg("pipeline run finished")

	return result, nil
}
