package mechanics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"raidlab/internal/combatlog"
)

const presetYAML = `
encounters:
  Infernal Colossus:
    - name: Inferno Blast
      type: dodge
      interval: 2500
      radius: 70
    - name: Molten Convergence
      type: soak
      interval: 6000
      radius: 90
abilities:
  Searing Brand:
    type: spread
    interval: 4000
    radius: 40
`

func TestParsePresets_EncounterWins(t *testing.T) {
	p, err := ParsePresets([]byte(presetYAML))
	if err != nil {
		t.Fatalf("ParsePresets: %v", err)
	}
	if p.Len() != 3 {
		t.Errorf("Len=%d, want 3", p.Len())
	}

	list, err := p.Mechanics(context.Background(), "infernal colossus ", []string{"Searing Brand"})
	if err != nil {
		t.Fatalf("Mechanics: %v", err)
	}
	if len(list) != 2 || list[1].Type != TypeSoak {
		t.Fatalf("got %+v", list)
	}

	// Callers must not be able to mutate the preset.
	list[0].Name = "changed"
	again, _ := p.Mechanics(context.Background(), "Infernal Colossus", nil)
	if again[0].Name != "Inferno Blast" {
		t.Errorf("preset was mutated through returned slice")
	}
}

func TestParsePresets_AbilityMatch(t *testing.T) {
	p, err := ParsePresets([]byte(presetYAML))
	if err != nil {
		t.Fatalf("ParsePresets: %v", err)
	}
	list, err := p.Mechanics(context.Background(), "Other Boss", []string{"Unrelated", "searing brand"})
	if err != nil {
		t.Fatalf("Mechanics: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len=%d", len(list))
	}
	if list[0].Name != "Searing Brand" || list[0].Type != TypeSpread {
		t.Errorf("got %+v", list[0])
	}

	none, err := p.Mechanics(context.Background(), "Other Boss", []string{"Unrelated"})
	if err != nil || len(none) != 0 {
		t.Errorf("expected no match, got %v %v", none, err)
	}
}

func TestParsePresets_Invalid(t *testing.T) {
	if _, err := ParsePresets([]byte("encounters: [oops")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLoadPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mechanics.yaml")
	if err := os.WriteFile(path, []byte(presetYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	if p.Name() != "preset" {
		t.Errorf("Name=%q", p.Name())
	}

	if _, err := LoadPresets(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPresetEnricher_NilUnavailable(t *testing.T) {
	var p *PresetEnricher
	if _, err := p.Mechanics(context.Background(), "x", nil); err != ErrUnavailable {
		t.Fatalf("err=%v", err)
	}
}

func TestPresets_NonFiniteRadiusIsSanitized(t *testing.T) {
	p, err := ParsePresets([]byte(`
encounters:
  Void Herald:
    - name: Null Zone
      type: dodge
      radius: .nan
    - name: Endless Ring
      type: dodge
      radius: .inf
`))
	if err != nil {
		t.Fatalf("ParsePresets: %v", err)
	}
	summary := &combatlog.LogSummary{EncounterName: "Void Herald"}
	list, source := NewExtractor(p).ExtractWithSource(context.Background(), summary)
	if source != "preset" || len(list) != 2 {
		t.Fatalf("source=%s list=%+v", source, list)
	}
	for _, m := range list {
		if m.Radius != DefaultRadius {
			t.Errorf("%s radius=%v, want %v", m.Name, m.Radius, float64(DefaultRadius))
		}
	}
}
