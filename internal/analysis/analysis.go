// Package analysis defines the classification record that drives a build.
//
// Producing the record is an external concern (a vision model looks at
// screenshots); this package only defines the shape, validates it, and turns
// it into generation prompts.
package analysis

import (
	"fmt"
	"regexp"

	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
	"github.com/p-blackswan/playable-forge/internal/template"
)

// ConfidenceLevel buckets a mechanic confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"   // 0.8 and above
	ConfidenceMedium ConfidenceLevel = "medium" // 0.5 to 0.8
	ConfidenceLow    ConfidenceLevel = "low"    // below 0.5
)

// VisualStyle is the look extracted from game screenshots.
type VisualStyle struct {
	ArtType      string   `json:"art_type"`      // cartoon, realistic, pixel, minimalist
	ColorPalette []string `json:"color_palette"` // ordered dominant hex colors
	Theme        string   `json:"theme"`         // fantasy, sci-fi, casual
	Mood         string   `json:"mood"`          // playful, intense, relaxing
}

// PromptPrefix renders the style as a prompt fragment shared by every asset
// in a session.
func (v VisualStyle) PromptPrefix() string {
	return fmt.Sprintf("%s style, %s theme, %s mood", v.ArtType, v.Theme, v.Mood)
}

// AssetNeed is one game-specific asset requirement from the classifier.
type AssetNeed struct {
	Key         string `json:"key"`         // template slot key
	Description string `json:"description"` // what the classifier saw
	Prompt      string `json:"prompt"`      // game-specific generation prompt, optional
}

// GameAnalysis is the complete classification of a game.
type GameAnalysis struct {
	GameName           string            `json:"game_name"`
	Publisher          string            `json:"publisher,omitempty"`
	Mechanic           template.Mechanic `json:"mechanic"`
	MechanicConfidence float64           `json:"mechanic_confidence"` // 0.0 to 1.0
	MechanicReasoning  string            `json:"mechanic_reasoning,omitempty"`

	VisualStyle  VisualStyle `json:"visual_style"`
	AssetsNeeded []AssetNeed `json:"assets_needed"`

	CoreLoopDescription string         `json:"core_loop_description,omitempty"`
	HookSuggestion      string         `json:"hook_suggestion,omitempty"`
	CTASuggestion       string         `json:"cta_suggestion,omitempty"`
	TemplateConfig      map[string]any `json:"template_config,omitempty"`
}

// ConfidenceLevel buckets the mechanic confidence score.
func (a *GameAnalysis) ConfidenceLevel() ConfidenceLevel {
	switch {
	case a.MechanicConfidence >= 0.8:
		return ConfidenceHigh
	case a.MechanicConfidence >= 0.5:
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// Reliable reports whether the classification is trustworthy enough to
// build from without human review.
func (a *GameAnalysis) Reliable() bool {
	return a.MechanicConfidence >= 0.6
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks the record before any generation work starts. All
// violations are precondition errors; nothing here is retryable.
func (a *GameAnalysis) Validate() error {
	if a.GameName == "" {
		return fmt.Errorf("%w: game_name is required", ferrors.ErrInvalidInput)
	}
	if a.MechanicConfidence < 0 || a.MechanicConfidence > 1 {
		return fmt.Errorf("%w: mechanic_confidence %v out of [0,1]", ferrors.ErrInvalidInput, a.MechanicConfidence)
	}
	for _, c := range a.VisualStyle.ColorPalette {
		if !hexColorRe.MatchString(c) {
			return fmt.Errorf("%w: invalid palette color %q", ferrors.ErrInvalidInput, c)
		}
	}
	seen := make(map[string]struct{}, len(a.AssetsNeeded))
	for _, need := range a.AssetsNeeded {
		if need.Key == "" {
			return fmt.Errorf("%w: asset need with empty key", ferrors.ErrInvalidInput)
		}
		if _, dup := seen[need.Key]; dup {
			return fmt.Errorf("%w: duplicate asset need %q", ferrors.ErrInvalidInput, need.Key)
		}
		seen[need.Key] = struct{}{}
	}
	return nil
}
