package mechanics

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PresetFile is the on-disk layout of hand-authored mechanics.
//
//	encounters:
//	  Infernal Colossus:
//	    - name: Inferno Blast
//	      type: dodge
//	abilities:
//	  Molten Convergence:
//	    type: soak
type PresetFile struct {
	Encounters map[string][]Mechanic `yaml:"encounters"`
	Abilities  map[string]Mechanic   `yaml:"abilities"`
}

// PresetEnricher serves mechanics from a preset file. Encounter presets win;
// otherwise any ability presets matching the observed abilities are used.
type PresetEnricher struct {
	encounters map[string][]Mechanic
	abilities  map[string]Mechanic
}

// LoadPresets reads a YAML preset file.
func LoadPresets(path string) (*PresetEnricher, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	return ParsePresets(b)
}

// ParsePresets decodes YAML preset bytes.
func ParsePresets(b []byte) (*PresetEnricher, error) {
	var raw PresetFile
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	p := &PresetEnricher{
		encounters: make(map[string][]Mechanic, len(raw.Encounters)),
		abilities:  make(map[string]Mechanic, len(raw.Abilities)),
	}
	for name, list := range raw.Encounters {
		p.encounters[normalize(name)] = list
	}
	for name, m := range raw.Abilities {
		if strings.TrimSpace(m.Name) == "" {
			m.Name = name
		}
		p.abilities[normalize(name)] = m
	}
	return p, nil
}

func (p *PresetEnricher) Name() string { return "preset" }

func (p *PresetEnricher) Mechanics(_ context.Context, encounter string, abilities []string) ([]Mechanic, error) {
	if p == nil {
		return nil, ErrUnavailable
	}
	if list, ok := p.encounters[normalize(encounter)]; ok && len(list) > 0 {
		return append([]Mechanic(nil), list...), nil
	}
	var out []Mechanic
	for _, a := range abilities {
		if m, ok := p.abilities[normalize(a)]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Len is the number of mechanics loaded, across encounter lists and
// ability presets.
func (p *PresetEnricher) Len() int {
	n := len(p.abilities)
	for _, list := range p.encounters {
		n += len(list)
	}
	return n
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
