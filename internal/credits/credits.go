// Package credits gates generation batches on the workspace balance.
package credits

import (
	"context"

	"github.com/rs/zerolog"

	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
	"github.com/p-blackswan/playable-forge/internal/layerapi"
	"github.com/p-blackswan/playable-forge/internal/metrics"
)

// BalanceSource reports the current workspace entitlement.
type BalanceSource interface {
	WorkspaceBalance(ctx context.Context) (*layerapi.Workspace, error)
}

// Guard fails a batch fast when the workspace cannot pay for it. One check
// happens before any generation work; mid-batch exhaustion is the backend's
// problem to report.
type Guard struct {
	source       BalanceSource
	minRequired  int
	lowThreshold int
	metrics      *metrics.Metrics // optional
	logger       zerolog.Logger

	// onLow, when set, is invoked once per check that lands at or below the
	// low-credit threshold (but above the minimum).
	onLow func(available int)
}

// NewGuard creates a credit guard. m may be nil.
func NewGuard(source BalanceSource, minRequired, lowThreshold int, m *metrics.Metrics, logger zerolog.Logger) *Guard {
	return &Guard{
		source:       source,
		minRequired:  minRequired,
		lowThreshold: lowThreshold,
		metrics:      m,
		logger:       logger.With().Str("component", "credits").Logger(),
	}
}

// OnLowBalance registers a callback fired when the balance dips into the
// warning band.
func (g *Guard) OnLowBalance(fn func(available int)) {
	g.onLow = fn
}

// Check fetches the balance and returns it, or an InsufficientCreditsError
// when the workspace cannot start a batch. A workspace without access is
// treated as a zero balance.
func (g *Guard) Check(ctx context.Context) (*layerapi.Workspace, error) {
	ws, err := g.source.WorkspaceBalance(ctx)
	if err != nil {
		return nil, err
	}

	available := ws.Balance
	if !ws.HasAccess {
		available = 0
	}
	if g.metrics != nil {
		g.metrics.SetCredits(available)
	}

	g.logger.Info().
		Int("available", available).
		Int("required", g.minRequired).
		Msg("credit check")

	if available < g.minRequired {
		return nil, &ferrors.InsufficientCreditsError{Available: available, Required: g.minRequired}
	}
	if available <= g.lowThreshold && g.onLow != nil {
		g.onLow(available)
	}
	return ws, nil
}
