// Package template maps classified game mechanics to playable-ad templates.
//
// A template descriptor declares the parameterized HTML document, the asset
// slots it needs filled, and the schema of its tunable parameters. The
// registry is built once at startup and never mutated afterward.
package template

import "strings"

// Mechanic is the classified core interactive behavior of a game.
type Mechanic string

const (
	MechanicMatch3  Mechanic = "match3"
	MechanicRunner  Mechanic = "runner"
	MechanicTapper  Mechanic = "tapper"
	MechanicMerger  Mechanic = "merger"
	MechanicPuzzle  Mechanic = "puzzle"
	MechanicShooter Mechanic = "shooter"
	MechanicUnknown Mechanic = "unknown"
)

// Mechanics lists every recognized mechanic.
func Mechanics() []Mechanic {
	return []Mechanic{
		MechanicMatch3, MechanicRunner, MechanicTapper,
		MechanicMerger, MechanicPuzzle, MechanicShooter,
		MechanicUnknown,
	}
}

// MechanicFromString maps a free-form classification label to a Mechanic,
// falling back to keyword heuristics for labels the classifier writes out
// long-form ("endless runner", "idle clicker").
func MechanicFromString(value string) Mechanic {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, m := range Mechanics() {
		if string(m) == v {
			return m
		}
	}
	switch {
	case strings.Contains(v, "match") || strings.Contains(v, "3"):
		return MechanicMatch3
	case strings.Contains(v, "run") || strings.Contains(v, "endless"):
		return MechanicRunner
	case strings.Contains(v, "tap") || strings.Contains(v, "click") || strings.Contains(v, "idle"):
		return MechanicTapper
	case strings.Contains(v, "merge") || strings.Contains(v, "2048"):
		return MechanicMerger
	case strings.Contains(v, "puzzle") || strings.Contains(v, "tetris") || strings.Contains(v, "block"):
		return MechanicPuzzle
	case strings.Contains(v, "shoot") || strings.Contains(v, "aim"):
		return MechanicShooter
	}
	return MechanicUnknown
}
