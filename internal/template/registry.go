package template

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
)

//go:embed templates/*.html
var templateFS embed.FS

// Registry maps mechanics to their template descriptors. It is built once
// and never mutated afterward, so lookups need no locking.
type Registry struct {
	descriptors map[Mechanic]*Descriptor
	fallback    *Descriptor
}

// overlay is the shape of the optional registry overlay file. It can only
// adjust parameter defaults; slots and documents are fixed at build time.
type overlay struct {
	Templates map[string]struct {
		Params map[string]any `yaml:"params"`
	} `yaml:"templates"`
}

// NewRegistry builds the registry from the embedded template documents.
// overlayPath, when non-empty, names a YAML file whose parameter defaults
// override the built-in ones. Overrides are normalized against the schema,
// so an out-of-range value is clamped rather than trusted.
func NewRegistry(overlayPath string) (*Registry, error) {
	descriptors := make(map[Mechanic]*Descriptor)
	for _, d := range []*Descriptor{
		match3Descriptor(),
		runnerDescriptor(),
		tapperDescriptor(),
	} {
		doc, err := templateFS.ReadFile("templates/" + string(d.Mechanic) + ".html")
		if err != nil {
			return nil, fmt.Errorf("load template %s: %w", d.Mechanic, err)
		}
		d.Document = string(doc)
		descriptors[d.Mechanic] = d
	}

	fallback := genericDescriptor()
	doc, err := templateFS.ReadFile("templates/generic.html")
	if err != nil {
		return nil, fmt.Errorf("load template generic: %w", err)
	}
	fallback.Document = string(doc)

	r := &Registry{descriptors: descriptors, fallback: fallback}
	if overlayPath != "" {
		if err := r.applyOverlay(overlayPath); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) applyOverlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read registry overlay: %w", err)
	}
	var ov overlay
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return fmt.Errorf("parse registry overlay: %w", err)
	}

	for name, entry := range ov.Templates {
		d, ok := r.descriptors[MechanicFromString(name)]
		if !ok {
			return fmt.Errorf("registry overlay: unknown template %q", name)
		}
		for key, value := range entry.Params {
			applied := false
			for i, p := range d.Params {
				if p.Key != key {
					continue
				}
				normalized, err := p.Normalize(value)
				if err != nil {
					return fmt.Errorf("registry overlay: template %s: %w", name, err)
				}
				d.Params[i].Default = defaultFromNormalized(p.Type, normalized)
				applied = true
				break
			}
			if !applied {
				return fmt.Errorf("registry overlay: template %s has no parameter %q", name, key)
			}
		}
	}
	return nil
}

// defaultFromNormalized converts a normalized string value back to the
// native type used for descriptor defaults.
func defaultFromNormalized(t ParamType, s string) any {
	switch t {
	case ParamInt:
		n, _ := toFloat(s)
		return int(n)
	case ParamFloat:
		n, _ := toFloat(s)
		return n
	}
	return s
}

// Resolve returns the descriptor registered for a mechanic.
func (r *Registry) Resolve(m Mechanic) (*Descriptor, error) {
	d, ok := r.descriptors[m]
	if !ok {
		return nil, &ferrors.UnknownMechanicError{Mechanic: string(m)}
	}
	return d, nil
}

// ResolveOrFallback resolves a mechanic, substituting the generic template
// when no descriptor is registered. Callers opt into the fallback; Resolve
// keeps the strict behavior.
func (r *Registry) ResolveOrFallback(m Mechanic) *Descriptor {
	if d, ok := r.descriptors[m]; ok {
		return d
	}
	return r.fallback
}

// Mechanics lists the mechanics with a registered template, in stable order.
func (r *Registry) Mechanics() []Mechanic {
	out := make([]Mechanic, 0, len(r.descriptors))
	for _, m := range Mechanics() {
		if _, ok := r.descriptors[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Descriptors returns every registered descriptor, in stable mechanic order.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.descriptors))
	for _, m := range r.Mechanics() {
		out = append(out, r.descriptors[m])
	}
	return out
}

func match3Descriptor() *Descriptor {
	return &Descriptor{
		Mechanic:    MechanicMatch3,
		Name:        "Match-3 Puzzle",
		Description: "Swap adjacent tiles to match 3 or more of the same type",
		Examples:    []string{"Candy Crush", "Bejeweled", "Gardenscapes", "Homescapes"},
		Slots: []Slot{
			{
				Key:           "tile_1",
				Description:   "First tile type (e.g., red gem, candy)",
				Category:      "gameplay",
				Required:      true,
				DefaultPrompt: "colorful gem game tile, round, glossy, cartoon style",
				Transparency:  true,
			},
			{
				Key:           "tile_2",
				Description:   "Second tile type (different color)",
				Category:      "gameplay",
				Required:      true,
				DefaultPrompt: "colorful gem game tile, round, glossy, cartoon style, blue",
				Transparency:  true,
			},
			{
				Key:           "tile_3",
				Description:   "Third tile type (different color)",
				Category:      "gameplay",
				Required:      true,
				DefaultPrompt: "colorful gem game tile, round, glossy, cartoon style, green",
				Transparency:  true,
			},
			{
				Key:           "tile_4",
				Description:   "Fourth tile type (different color)",
				Category:      "gameplay",
				Required:      true,
				DefaultPrompt: "colorful gem game tile, round, glossy, cartoon style, yellow",
				Transparency:  true,
			},
			{
				Key:           "background",
				Description:   "Game background",
				Category:      "environment",
				Required:      true,
				DefaultPrompt: "colorful game background, fantasy, vibrant",
			},
		},
		Params: []Param{
			{Key: "GRID_WIDTH", Type: ParamInt, Default: 7, Min: 5, Max: 9, HasRange: true, Description: "Number of columns in the grid"},
			{Key: "GRID_HEIGHT", Type: ParamInt, Default: 9, Min: 7, Max: 12, HasRange: true, Description: "Number of rows in the grid"},
			{Key: "TILE_TYPES", Type: ParamInt, Default: 4, Min: 3, Max: 6, HasRange: true, Description: "Number of different tile types"},
			{Key: "MATCH_MINIMUM", Type: ParamInt, Default: 3, Min: 3, Max: 4, HasRange: true, Description: "Minimum tiles needed for a match"},
		},
	}
}

func runnerDescriptor() *Descriptor {
	return &Descriptor{
		Mechanic:    MechanicRunner,
		Name:        "Endless Runner",
		Description: "Run, jump, and dodge obstacles in lanes",
		Examples:    []string{"Subway Surfers", "Temple Run", "Sonic Dash", "Minion Rush"},
		Slots: []Slot{
			{
				Key:           "player",
				Description:   "Main player character (running pose)",
				Category:      "character",
				Required:      true,
				DefaultPrompt: "cartoon game character, running pose, side view, mobile game style",
				Transparency:  true,
			},
			{
				Key:           "obstacle",
				Description:   "Obstacle to avoid",
				Category:      "gameplay",
				Required:      true,
				DefaultPrompt: "game obstacle, barrier, cartoon style, dangerous looking",
				Transparency:  true,
			},
			{
				Key:           "collectible",
				Description:   "Item to collect (coin, gem)",
				Category:      "gameplay",
				Required:      true,
				DefaultPrompt: "golden coin, shiny, game collectible, cartoon style",
				Transparency:  true,
			},
			{
				Key:           "background",
				Description:   "Scrolling background",
				Category:      "environment",
				Required:      true,
				DefaultPrompt: "endless runner game background, road or path, colorful",
			},
		},
		Params: []Param{
			{Key: "LANES", Type: ParamInt, Default: 3, Min: 2, Max: 5, HasRange: true, Description: "Number of lanes"},
			{Key: "SPEED", Type: ParamFloat, Default: 5.0, Min: 3.0, Max: 10.0, HasRange: true, Description: "Initial game speed"},
			{Key: "JUMP_HEIGHT", Type: ParamInt, Default: 400, Min: 300, Max: 600, HasRange: true, Description: "Jump velocity"},
		},
	}
}

func tapperDescriptor() *Descriptor {
	return &Descriptor{
		Mechanic:    MechanicTapper,
		Name:        "Tapper / Idle Clicker",
		Description: "Tap rapidly to accumulate points with multipliers",
		Examples:    []string{"Cookie Clicker", "Idle Miner Tycoon", "Tap Titans", "AdVenture Capitalist"},
		Slots: []Slot{
			{
				Key:           "target",
				Description:   "Main tappable element (cookie, character, button)",
				Category:      "gameplay",
				Required:      true,
				DefaultPrompt: "large tappable game icon, cartoon style, inviting, colorful",
				Transparency:  true,
			},
			{
				Key:           "bonus",
				Description:   "Bonus item that appears",
				Category:      "gameplay",
				DefaultPrompt: "golden star, bonus icon, shiny, game reward",
				Transparency:  true,
			},
			{
				Key:           "background",
				Description:   "Game background",
				Category:      "environment",
				Required:      true,
				DefaultPrompt: "idle game background, colorful, appealing",
			},
		},
		Params: []Param{
			{Key: "POINTS_PER_TAP", Type: ParamInt, Default: 1, Min: 1, Max: 100, HasRange: true, Description: "Base points per tap"},
			{Key: "BONUS_THRESHOLD", Type: ParamInt, Default: 10, Min: 5, Max: 50, HasRange: true, Description: "Taps needed for bonus"},
		},
	}
}

// genericDescriptor is the opt-in fallback for mechanics without a
// dedicated template. A single showcase asset keeps the prompt surface
// small for games the classifier could not place.
func genericDescriptor() *Descriptor {
	return &Descriptor{
		Mechanic:    MechanicUnknown,
		Name:        "Generic Showcase",
		Description: "Tap-to-interact showcase of the game's key art",
		Slots: []Slot{
			{
				Key:           "showcase",
				Description:   "Hero element representing the game",
				Category:      "hook",
				Required:      true,
				DefaultPrompt: "mobile game hero character or key item, cartoon style, appealing",
				Transparency:  true,
			},
			{
				Key:           "background",
				Description:   "Game background",
				Category:      "environment",
				Required:      true,
				DefaultPrompt: "mobile game background, colorful, appealing",
			},
		},
	}
}
