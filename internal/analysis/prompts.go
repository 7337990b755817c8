package analysis

import (
	"strings"

	"github.com/p-blackswan/playable-forge/internal/template"
)

// SlotPrompt pairs a template slot with the final prompt to generate it.
type SlotPrompt struct {
	Slot   template.Slot
	Prompt string
}

// BuildPrompts merges the template's slot requirements with the game's
// classified needs. Per slot, the game-specific prompt wins over the
// classifier's description, which wins over the template default. Every
// prompt gets the session style prefix and a background hint keyed off the
// slot's transparency requirement. Only required slots are returned, in
// template order.
func BuildPrompts(d *template.Descriptor, a *GameAnalysis) []SlotPrompt {
	prompts := make(map[string]string, len(a.AssetsNeeded))
	descriptions := make(map[string]string, len(a.AssetsNeeded))
	for _, need := range a.AssetsNeeded {
		if need.Prompt != "" {
			prompts[need.Key] = need.Prompt
		}
		if need.Description != "" {
			descriptions[need.Key] = need.Description
		}
	}

	prefix := a.VisualStyle.PromptPrefix()
	out := make([]SlotPrompt, 0, len(d.Slots))
	for _, slot := range d.Slots {
		if !slot.Required {
			continue
		}

		base := slot.DefaultPrompt
		if p, ok := prompts[slot.Key]; ok {
			base = p
		} else if desc, ok := descriptions[slot.Key]; ok {
			base = desc
		}

		var suffix string
		if slot.Transparency {
			suffix = "transparent background, game asset, high quality"
		} else {
			suffix = "game background, high quality"
		}

		out = append(out, SlotPrompt{
			Slot:   slot,
			Prompt: base + ", " + prefix + ", " + suffix,
		})
	}
	return out
}

// fallbackMaxWords caps the simplified retry prompt. Content moderation
// usually trips on style adjectives, so the last attempt strips down to
// the bare subject.
const fallbackMaxWords = 7

// SimplifyPrompt builds the stripped-down prompt used on a slot's final
// retry attempt: the slot's subject only, no style terms, capped at a few
// words.
func SimplifyPrompt(slot template.Slot) string {
	base := slot.Description
	if base == "" {
		base = slot.DefaultPrompt
	}
	// Drop parentheticals and keep the first clause.
	if i := strings.IndexAny(base, "(,"); i > 0 {
		base = base[:i]
	}

	words := strings.Fields(strings.ToLower(base))
	if len(words) > fallbackMaxWords-2 {
		words = words[:fallbackMaxWords-2]
	}
	words = append(words, "game", "asset")
	return strings.Join(words, " ")
}
