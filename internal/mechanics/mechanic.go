// Package mechanics derives a small, bounded list of encounter hazards from
// a parsed log summary.
package mechanics

import (
	"math"
	"strings"
)

// Type is the player response a mechanic demands.
type Type string

const (
	TypeDodge  Type = "dodge"
	TypeSoak   Type = "soak"
	TypeSpread Type = "spread"
)

// Bounds applied to every mechanic before it reaches the simulation.
const (
	MaxMechanics    = 6
	MinInterval     = 250  // ms
	DefaultInterval = 3000 // ms
	MinRadius       = 15
	MaxRadius       = 200
	DefaultRadius   = 60
)

// Mechanic is a named hazard template driving the simulation.
type Mechanic struct {
	Name        string  `json:"name" yaml:"name"`
	Type        Type    `json:"type" yaml:"type"`
	Color       string  `json:"color" yaml:"color"`
	Description string  `json:"description" yaml:"description"`
	Damage      int     `json:"damage" yaml:"damage"`
	Interval    int     `json:"interval" yaml:"interval"`
	Radius      float64 `json:"radius" yaml:"radius"`
}

// ParseType maps free-form text onto a known type, defaulting to dodge.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeSoak:
		return TypeSoak
	case TypeSpread:
		return TypeSpread
	default:
		return TypeDodge
	}
}

// DefaultColor returns the display color used when a mechanic has none.
func DefaultColor(t Type) string {
	switch t {
	case TypeSoak:
		return "#4dff88"
	case TypeSpread:
		return "#b84dff"
	default:
		return "#ff4d4d"
	}
}

// Sanitize clamps a mechanic into simulation-safe ranges. A malformed
// mechanic is corrected, never rejected.
func Sanitize(m Mechanic) Mechanic {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		m.Name = "Unnamed Mechanic"
	}
	m.Type = ParseType(string(m.Type))
	if strings.TrimSpace(m.Color) == "" {
		m.Color = DefaultColor(m.Type)
	}
	if m.Damage < 0 {
		m.Damage = 0
	}
	if m.Interval <= 0 {
		m.Interval = DefaultInterval
	}
	if m.Interval < MinInterval {
		m.Interval = MinInterval
	}
	if m.Radius <= 0 || math.IsNaN(m.Radius) || math.IsInf(m.Radius, 0) {
		m.Radius = DefaultRadius
	}
	if m.Radius < MinRadius {
		m.Radius = MinRadius
	}
	if m.Radius > MaxRadius {
		m.Radius = MaxRadius
	}
	return m
}

// SanitizeAll sanitizes and truncates a list to MaxMechanics entries.
func SanitizeAll(list []Mechanic) []Mechanic {
	if len(list) > MaxMechanics {
		list = list[:MaxMechanics]
	}
	out := make([]Mechanic, 0, len(list))
	for _, m := range list {
		out = append(out, Sanitize(m))
	}
	return out
}
