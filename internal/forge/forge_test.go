package forge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/playable-forge/internal/analysis"
	"github.com/p-blackswan/playable-forge/internal/config"
	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
	"github.com/p-blackswan/playable-forge/internal/layerapi"
	"github.com/p-blackswan/playable-forge/internal/template"
)

type submitCall struct {
	prompt      string
	styleID     string
	referenceID string
}

// submitResult scripts one Submit outcome.
type submitResult struct {
	gen *layerapi.Generation
	err error
}

type mockGenerator struct {
	t     *testing.T
	style layerapi.Style
	calls []submitCall
	queue []submitResult
}

func success(n int) submitResult {
	return submitResult{gen: &layerapi.Generation{
		JobID:    fmt.Sprintf("job-%d", n),
		Status:   layerapi.StatusCompleted,
		ImageID:  fmt.Sprintf("img-%d", n),
		ImageURL: fmt.Sprintf("https://cdn/img-%d.png", n),
	}}
}

func failure(err error) submitResult {
	return submitResult{err: err}
}

func (m *mockGenerator) GetStyle(ctx context.Context, styleID string) (layerapi.Style, error) {
	return m.style, nil
}

func (m *mockGenerator) Submit(ctx context.Context, prompt, styleID, referenceID string) (*layerapi.Generation, error) {
	m.calls = append(m.calls, submitCall{prompt: prompt, styleID: styleID, referenceID: referenceID})
	require.NotEmpty(m.t, m.queue, "unexpected submit: %s", prompt)
	next := m.queue[0]
	m.queue = m.queue[1:]
	return next.gen, next.err
}

func (m *mockGenerator) AwaitCompletion(ctx context.Context, jobID string, timeout time.Duration) (*layerapi.Generation, error) {
	m.t.Fatalf("unexpected AwaitCompletion for %s", jobID)
	return nil, nil
}

func (m *mockGenerator) DownloadImage(ctx context.Context, url string) ([]byte, error) {
	return []byte("bytes:" + url), nil
}

type stubGuard struct {
	ws  *layerapi.Workspace
	err error
	n   int
}

func (s *stubGuard) Check(ctx context.Context) (*layerapi.Workspace, error) {
	s.n++
	return s.ws, s.err
}

func forgeConfig() *config.Config {
	return &config.Config{
		PollTimeout:      time.Minute,
		PollInitialDelay: time.Millisecond,
		PollMaxDelay:     time.Millisecond,
		PollMultiplier:   1.5,
		ForgeMaxAttempts: 3,
		ForgeSlotDelay:   time.Millisecond,
	}
}

func newTestForger(t *testing.T, gen Generator, guard CreditChecker) *Forger {
	t.Helper()
	f := New(gen, guard, forgeConfig(), nil, zerolog.Nop())
	f.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })
	return f
}

func slotPrompts(keys ...string) []analysis.SlotPrompt {
	out := make([]analysis.SlotPrompt, 0, len(keys))
	for _, k := range keys {
		out = append(out, analysis.SlotPrompt{
			Slot: template.Slot{
				Key:           k,
				Description:   k + " sprite",
				Category:      "gameplay",
				Required:      true,
				DefaultPrompt: k + " default prompt",
				Transparency:  true,
			},
			Prompt: k + " full prompt, cartoon style",
		})
	}
	return out
}

func readyStyle() layerapi.Style {
	return layerapi.Style{ID: "style-1", Name: "cartoon", Status: layerapi.StyleStatusReady}
}

func TestForgeAllHappyPath(t *testing.T) {
	gen := &mockGenerator{t: t, style: readyStyle()}
	for i := 1; i <= 5; i++ {
		gen.queue = append(gen.queue, success(i))
	}
	guard := &stubGuard{ws: &layerapi.Workspace{Balance: 200, HasAccess: true}}

	slots := slotPrompts("tile_1", "tile_2", "tile_3", "tile_4", "background")
	session, err := newTestForger(t, gen, guard).ForgeAll(context.Background(), slots, "style-1")
	require.NoError(t, err)

	require.Len(t, session.Assets, 5)
	assert.Equal(t, 5, session.ValidCount())
	assert.Equal(t, 1, guard.n, "credit check happens exactly once per session")
	assert.Equal(t, 200, session.StartingBalance)

	// The first success sets the reference; every later submit carries it.
	assert.Equal(t, "img-1", session.ReferenceID)
	assert.Empty(t, gen.calls[0].referenceID)
	for _, call := range gen.calls[1:] {
		assert.Equal(t, "img-1", call.referenceID)
	}

	for i, asset := range session.Assets {
		assert.Equal(t, slots[i].Slot.Key, asset.SlotKey)
		assert.True(t, asset.Valid)
		assert.Equal(t, 1, asset.Attempts)
		assert.NotEmpty(t, asset.Data)
	}
}

func TestReferenceNeverOverwritten(t *testing.T) {
	gen := &mockGenerator{t: t, style: readyStyle()}
	gen.queue = []submitResult{
		// slot 1 exhausts all three attempts
		failure(&ferrors.APIError{Service: "layer", StatusCode: 503, Message: "unavailable"}),
		failure(&ferrors.APIError{Service: "layer", StatusCode: 503, Message: "unavailable"}),
		failure(&ferrors.APIError{Service: "layer", StatusCode: 503, Message: "unavailable"}),
		// slot 2 succeeds and becomes the reference
		success(7),
		// slot 3 succeeds with a different image
		success(8),
	}
	guard := &stubGuard{ws: &layerapi.Workspace{Balance: 200, HasAccess: true}}

	session, err := newTestForger(t, gen, guard).ForgeAll(
		context.Background(), slotPrompts("a", "b", "c"), "style-1")
	require.NoError(t, err)

	assert.Equal(t, "img-7", session.ReferenceID, "first success wins, later images never replace it")
	assert.False(t, session.Assets[0].Valid)
	assert.True(t, session.Assets[1].Valid)
	assert.True(t, session.Assets[2].Valid)

	// Slot 3's submit carries slot 2's image as reference.
	last := gen.calls[len(gen.calls)-1]
	assert.Equal(t, "img-7", last.referenceID)
}

func TestForgeAllInsufficientCredits(t *testing.T) {
	gen := &mockGenerator{t: t, style: readyStyle()}
	guard := &stubGuard{err: &ferrors.InsufficientCreditsError{Available: 10, Required: 50}}

	_, err := newTestForger(t, gen, guard).ForgeAll(
		context.Background(), slotPrompts("a", "b"), "style-1")
	require.Error(t, err)

	var credErr *ferrors.InsufficientCreditsError
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, 10, credErr.Available)
	assert.Equal(t, 50, credErr.Required)
	assert.Empty(t, gen.calls, "no jobs may be submitted when the credit check fails")
}

func TestForgeAllStyleNotReady(t *testing.T) {
	gen := &mockGenerator{t: t, style: layerapi.Style{ID: "style-2", Status: "TRAINING"}}
	guard := &stubGuard{ws: &layerapi.Workspace{Balance: 200, HasAccess: true}}

	_, err := newTestForger(t, gen, guard).ForgeAll(
		context.Background(), slotPrompts("a"), "style-2")
	require.Error(t, err)

	var styleErr *ferrors.InvalidStyleError
	require.True(t, errors.As(err, &styleErr))
	assert.Empty(t, gen.calls)
	assert.Zero(t, guard.n, "style readiness is checked before spending a credit lookup")
}

func TestSlotFailureDoesNotAbortBatch(t *testing.T) {
	transient := &ferrors.APIError{Service: "layer", StatusCode: 503, Message: "backend busy"}
	gen := &mockGenerator{t: t, style: readyStyle()}
	gen.queue = []submitResult{
		success(1),
		failure(transient), failure(transient), failure(transient), // slot 2, all attempts
		success(2),
		success(3),
	}
	guard := &stubGuard{ws: &layerapi.Workspace{Balance: 200, HasAccess: true}}

	slots := slotPrompts("player", "obstacle", "collectible", "background")
	session, err := newTestForger(t, gen, guard).ForgeAll(context.Background(), slots, "style-1")
	require.NoError(t, err, "slot failures must never raise out of the batch")

	require.Len(t, session.Assets, 4)
	assert.Equal(t, 3, session.ValidCount())

	failed := session.Assets[1]
	assert.Equal(t, "obstacle", failed.SlotKey)
	assert.False(t, failed.Valid)
	assert.Equal(t, 3, failed.Attempts)
	assert.Contains(t, failed.Error, "503")
	assert.Nil(t, failed.Data)
}

func TestFinalAttemptUsesSimplifiedPrompt(t *testing.T) {
	moderation := &ferrors.GenerationFailedError{JobID: "j", Code: "CONTENT_MODERATION", Message: "rejected"}
	gen := &mockGenerator{t: t, style: readyStyle()}
	gen.queue = []submitResult{
		failure(moderation),
		failure(moderation),
		success(4),
	}
	guard := &stubGuard{ws: &layerapi.Workspace{Balance: 200, HasAccess: true}}

	slots := slotPrompts("target")
	session, err := newTestForger(t, gen, guard).ForgeAll(context.Background(), slots, "style-1")
	require.NoError(t, err)

	require.Len(t, gen.calls, 3)
	assert.Equal(t, slots[0].Prompt, gen.calls[0].prompt)
	assert.Equal(t, slots[0].Prompt, gen.calls[1].prompt)

	simplified := analysis.SimplifyPrompt(slots[0].Slot)
	assert.Equal(t, simplified, gen.calls[2].prompt)
	assert.NotContains(t, gen.calls[2].prompt, "cartoon style")

	asset := session.Assets[0]
	assert.True(t, asset.Valid)
	assert.Equal(t, 3, asset.Attempts)
	assert.Equal(t, simplified, asset.Prompt, "the recorded prompt is the one that worked")
}

func TestPermanentFailureStopsRetrying(t *testing.T) {
	gen := &mockGenerator{t: t, style: readyStyle()}
	gen.queue = []submitResult{
		failure(&ferrors.APIError{Service: "layer", StatusCode: 400, Message: "bad prompt"}),
		success(1),
	}
	guard := &stubGuard{ws: &layerapi.Workspace{Balance: 200, HasAccess: true}}

	session, err := newTestForger(t, gen, guard).ForgeAll(
		context.Background(), slotPrompts("a", "b"), "style-1")
	require.NoError(t, err)

	assert.False(t, session.Assets[0].Valid)
	assert.Equal(t, 1, session.Assets[0].Attempts, "permanent errors are not retried")
	assert.True(t, session.Assets[1].Valid)
}

func TestSlotDelayBetweenSubmissions(t *testing.T) {
	gen := &mockGenerator{t: t, style: readyStyle()}
	gen.queue = []submitResult{success(1), success(2), success(3)}
	guard := &stubGuard{ws: &layerapi.Workspace{Balance: 200, HasAccess: true}}

	f := New(gen, guard, forgeConfig(), nil, zerolog.Nop())
	var sleeps []time.Duration
	f.SetSleep(func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	})

	_, err := f.ForgeAll(context.Background(), slotPrompts("a", "b", "c"), "style-1")
	require.NoError(t, err)

	// One pause before each slot after the first, no retry sleeps.
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, sleeps)
}

func TestTrackerCompareAndSet(t *testing.T) {
	tr := &Tracker{}
	assert.Empty(t, tr.Reference())

	assert.False(t, tr.RecordIfFirst(""))
	assert.True(t, tr.RecordIfFirst("img-a"))
	assert.False(t, tr.RecordIfFirst("img-b"))
	assert.Equal(t, "img-a", tr.Reference())
}
