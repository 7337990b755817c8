// Package assemble turns a template descriptor, a set of embeddable assets,
// and a playable configuration into a single self-contained HTML document,
// then validates and packages it per ad network.
package assemble

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
	"github.com/p-blackswan/playable-forge/internal/template"
)

// Phase timings shared by every template, in milliseconds.
const (
	HookDurationMS     = 3000
	GameplayDurationMS = 15000
	CTADurationMS      = 5000
)

// Config defaults.
const (
	DefaultTitle           = "Playable Ad"
	DefaultWidth           = 320
	DefaultHeight          = 480
	DefaultBackgroundColor = "#1a1a2e"
	DefaultHookText        = "Tap to Play!"
	DefaultCTAText         = "Download FREE"
	DefaultStoreURL        = "https://apps.apple.com"
)

// Config controls the presentation of one assembled playable.
type Config struct {
	Title           string         `json:"title"`
	GameName        string         `json:"game_name"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	BackgroundColor string         `json:"background_color"`
	StoreURLiOS     string         `json:"store_url_ios"`
	StoreURLAndroid string         `json:"store_url_android"`
	HookText        string         `json:"hook_text"`
	CTAText         string         `json:"cta_text"`
	Params          map[string]any `json:"params,omitempty"` // template-specific parameters
}

// StoreURL picks the redirect target: iOS first, then Android, then the
// generic fallback.
func (c Config) StoreURL() string {
	if c.StoreURLiOS != "" {
		return c.StoreURLiOS
	}
	if c.StoreURLAndroid != "" {
		return c.StoreURLAndroid
	}
	return DefaultStoreURL
}

func (c Config) withDefaults() Config {
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.GameName == "" {
		c.GameName = c.Title
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.BackgroundColor == "" {
		c.BackgroundColor = DefaultBackgroundColor
	}
	if c.HookText == "" {
		c.HookText = DefaultHookText
	}
	if c.CTAText == "" {
		c.CTAText = DefaultCTAText
	}
	return c
}

// Asset is one embeddable image keyed by template slot.
type Asset struct {
	SlotKey string
	DataURI string
	Valid   bool
}

// fallbackDataURI is a 1x1 transparent PNG used for slots whose generation
// failed, so the playable still renders instead of breaking on a missing
// image.
const fallbackDataURI = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// Playable is one assembled document plus its validation verdict. Size and
// structural violations are reported here, never raised.
type Playable struct {
	Mechanic             template.Mechanic
	Title                string
	Document             string
	SizeBytes            int
	AssetCount           int
	FallbackSlots        []string
	Valid                bool
	ValidationErrors     []string
	NetworkCompatibility map[Network]bool
}

// Assembler builds and validates playables against a size ceiling.
type Assembler struct {
	maxBytes int
	logger   zerolog.Logger
}

// NewAssembler creates an assembler. maxBytes is the hard document ceiling
// (default 5 MiB).
func NewAssembler(maxBytes int, logger zerolog.Logger) *Assembler {
	if maxBytes <= 0 {
		maxBytes = 5 * mib
	}
	return &Assembler{
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "assemble").Logger(),
	}
}

// Assemble substitutes assets and configuration into the descriptor's
// document. Required slots with a missing or invalid asset get the built-in
// fallback image and are listed in FallbackSlots. The result is
// deterministic: identical inputs produce byte-identical documents.
func (a *Assembler) Assemble(d *template.Descriptor, assets map[string]Asset, cfg Config) (*Playable, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil template descriptor", ferrors.ErrInvalidInput)
	}
	cfg = cfg.withDefaults()

	manifest := make(map[string]string, len(d.Slots))
	var fallbacks []string
	for _, slot := range d.Slots {
		asset, ok := assets[slot.Key]
		switch {
		case ok && asset.Valid && asset.DataURI != "":
			manifest[slot.Key] = asset.DataURI
		case slot.Required:
			manifest[slot.Key] = fallbackDataURI
			fallbacks = append(fallbacks, slot.Key)
		}
	}

	manifestJSON, err := json.Marshal(manifest) // map keys marshal sorted
	if err != nil {
		return nil, fmt.Errorf("encoding asset manifest: %w", err)
	}

	vars := map[string]string{
		"TITLE":             htmlEscape(cfg.Title),
		"GAME_NAME":         htmlEscape(cfg.GameName),
		"WIDTH":             fmt.Sprintf("%d", cfg.Width),
		"HEIGHT":            fmt.Sprintf("%d", cfg.Height),
		"BACKGROUND_COLOR":  cfg.BackgroundColor,
		"STORE_URL":         cfg.StoreURL(),
		"HOOK_TEXT":         htmlEscape(cfg.HookText),
		"CTA_TEXT":          htmlEscape(cfg.CTAText),
		"HOOK_DURATION":     fmt.Sprintf("%d", HookDurationMS),
		"GAMEPLAY_DURATION": fmt.Sprintf("%d", GameplayDurationMS),
		"CTA_DURATION":      fmt.Sprintf("%d", CTADurationMS),
		"ASSET_MANIFEST":    string(manifestJSON),
	}

	for _, p := range d.Params {
		val, err := p.Normalize(cfg.Params[p.Key])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ferrors.ErrInvalidInput, err)
		}
		vars[p.Key] = val
	}

	doc := substitute(d.Document, vars)

	p := &Playable{
		Mechanic:      d.Mechanic,
		Title:         cfg.Title,
		Document:      doc,
		SizeBytes:     len(doc),
		AssetCount:    len(manifest),
		FallbackSlots: fallbacks,
	}
	a.validate(p)

	a.logger.Info().
		Str("mechanic", string(d.Mechanic)).
		Int("size_bytes", p.SizeBytes).
		Int("assets", p.AssetCount).
		Int("fallbacks", len(p.FallbackSlots)).
		Bool("valid", p.Valid).
		Msg("playable assembled")

	return p, nil
}

// validate fills in the verdict: the hard size ceiling, structural markers,
// and a per-network compatibility flag computed from each network's limit.
func (a *Assembler) validate(p *Playable) {
	var errs []string

	if p.SizeBytes > a.maxBytes {
		errs = append(errs, fmt.Sprintf(
			"document size %d bytes exceeds %d byte ceiling", p.SizeBytes, a.maxBytes))
	}
	if !strings.Contains(p.Document, "<!DOCTYPE html>") {
		errs = append(errs, "missing <!DOCTYPE html> declaration")
	}
	if !strings.Contains(p.Document, `name="viewport"`) {
		errs = append(errs, "missing viewport meta tag")
	}
	if !strings.Contains(p.Document, "openStoreUrl") {
		errs = append(errs, "missing store redirect handler (openStoreUrl)")
	}
	if idx := strings.Index(p.Document, "${"); idx >= 0 {
		end := idx + 24
		if end > len(p.Document) {
			end = len(p.Document)
		}
		errs = append(errs, fmt.Sprintf("unsubstituted template variable near %q", p.Document[idx:end]))
	}

	p.NetworkCompatibility = make(map[Network]bool, len(networkSpecs))
	structuralOK := len(errs) == 0 ||
		(len(errs) == 1 && strings.HasPrefix(errs[0], "document size"))
	for n, spec := range networkSpecs {
		p.NetworkCompatibility[n] = structuralOK &&
			p.SizeBytes <= spec.MaxBytes &&
			(!spec.RequiresMRAID || strings.Contains(p.Document, "mraid"))
	}

	p.ValidationErrors = errs
	p.Valid = len(errs) == 0
}

// CompatibleNetworks lists networks the playable satisfies, in stable order.
func (p *Playable) CompatibleNetworks() []Network {
	var out []Network
	for _, n := range Networks() {
		if p.NetworkCompatibility[n] {
			out = append(out, n)
		}
	}
	return out
}

// substitute replaces every ${NAME} whose name is present in vars, longest
// names first so a prefix never shadows a longer variable.
func substitute(doc string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "${"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(doc)
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&#34;",
)

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
