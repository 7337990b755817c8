package template

import (
	"fmt"
	"regexp"
	"strconv"
)

// ParamType enumerates the types a template parameter can declare.
type ParamType string

const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamString ParamType = "string"
	ParamColor  ParamType = "color"
)

// Slot is one named asset requirement declared by a template.
type Slot struct {
	Key           string
	Description   string
	Category      string // hook, gameplay, cta, character, environment
	Required      bool
	DefaultPrompt string // used when the game analysis has no prompt for this slot
	Transparency  bool   // transparent background needed (forces PNG)
	MaxDimension  int    // max pixel dimension; 0 means the optimizer default
}

// Param is the schema of one configurable template parameter.
type Param struct {
	Key         string
	Type        ParamType
	Default     any
	Min         float64
	Max         float64
	HasRange    bool
	Description string
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Normalize validates a raw config value against the schema: type check,
// clamp to the declared range, fall back to the default when absent.
// The returned string is ready for template substitution.
func (p Param) Normalize(raw any) (string, error) {
	if raw == nil {
		raw = p.Default
	}

	switch p.Type {
	case ParamInt:
		n, err := toFloat(raw)
		if err != nil {
			return "", fmt.Errorf("parameter %s: %w", p.Key, err)
		}
		if p.HasRange {
			n = clamp(n, p.Min, p.Max)
		}
		return strconv.FormatInt(int64(n), 10), nil
	case ParamFloat:
		n, err := toFloat(raw)
		if err != nil {
			return "", fmt.Errorf("parameter %s: %w", p.Key, err)
		}
		if p.HasRange {
			n = clamp(n, p.Min, p.Max)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case ParamColor:
		s, ok := raw.(string)
		if !ok || !hexColorRe.MatchString(s) {
			return "", fmt.Errorf("parameter %s: expected hex color, got %v", p.Key, raw)
		}
		return s, nil
	case ParamString:
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("parameter %s: expected string, got %T", p.Key, raw)
		}
		return s, nil
	}
	return "", fmt.Errorf("parameter %s: unknown type %q", p.Key, p.Type)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func clamp(n, lo, hi float64) float64 {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Descriptor is the static definition of one game mechanic's presentation.
type Descriptor struct {
	Mechanic    Mechanic
	Name        string
	Description string
	Document    string // parameterized HTML with ${NAME} substitution points
	Slots       []Slot
	Params      []Param
	Examples    []string
}

// RequiredSlotKeys returns the keys of all required slots.
func (d *Descriptor) RequiredSlotKeys() []string {
	keys := make([]string, 0, len(d.Slots))
	for _, s := range d.Slots {
		if s.Required {
			keys = append(keys, s.Key)
		}
	}
	return keys
}

// Param returns the schema for a parameter key, if declared.
func (d *Descriptor) Param(key string) (Param, bool) {
	for _, p := range d.Params {
		if p.Key == key {
			return p, true
		}
	}
	return Param{}, false
}

// DefaultConfig returns the declared default for every parameter.
func (d *Descriptor) DefaultConfig() map[string]any {
	cfg := make(map[string]any, len(d.Params))
	for _, p := range d.Params {
		cfg[p.Key] = p.Default
	}
	return cfg
}
