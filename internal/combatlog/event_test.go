package combatlog

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

// logLine builds a line in the combat-log layout. amount < 0 leaves the
// damage column out entirely.
func logLine(ts, evType, srcGUID, srcName, destName string, spellID int, spellName string, amount int) string {
	n := 12
	if amount >= 0 {
		n = 30
	}
	params := make([]string, n)
	for i := range params {
		params[i] = "0x0"
	}
	params[fieldEventType] = evType
	params[fieldSourceGUID] = srcGUID
	params[fieldSourceName] = `"` + srcName + `"`
	params[fieldDestName] = `"` + destName + `"`
	params[fieldSpellID] = fmt.Sprint(spellID)
	params[fieldSpellName] = `"` + spellName + `"`
	if amount >= 0 {
		params[fieldAmount] = fmt.Sprint(amount)
	}
	return "4/21 " + ts + "  " + strings.Join(params, ",")
}

func TestParseLine_CastSuccess(t *testing.T) {
	line := logLine("20:15:32.250", EventCastSuccess, "Creature-0-3111-2657-1-215657", "Ulgrax", "Brakka", 434803, "Carnivorous Contest", -1)
	ev, ok := ParseLine(line)
	if !ok {
		t.Fatalf("expected ok")
	}
	if ev.Type != EventCastSuccess {
		t.Fatalf("type=%q", ev.Type)
	}
	want := 20*3600 + 15*60 + 32.25
	if math.Abs(ev.Seconds-want) > 1e-9 {
		t.Fatalf("seconds=%v want %v", ev.Seconds, want)
	}
	if ev.Source != SourceEnemy || !ev.Hostile() {
		t.Fatalf("source=%v", ev.Source)
	}
	if ev.SourceName != "Ulgrax" || ev.DestName != "Brakka" {
		t.Fatalf("source/dest=%q/%q", ev.SourceName, ev.DestName)
	}
	if ev.SpellID != 434803 || ev.SpellName != "Carnivorous Contest" {
		t.Fatalf("spell=%d %q", ev.SpellID, ev.SpellName)
	}
	if ev.AmountKnown {
		t.Fatalf("amount should be unknown on a short line")
	}
}

func TestParseLine_DamageAmount(t *testing.T) {
	line := logLine("20:15:33.000", EventSpellDamage, "Player-1403-0A1B2C3D", "Quillon", "Ulgrax", 133, "Fireball", 98123)
	ev, ok := ParseLine(line)
	if !ok {
		t.Fatalf("expected ok")
	}
	if ev.Source != SourcePlayer {
		t.Fatalf("source=%v", ev.Source)
	}
	if !ev.AmountKnown || ev.Amount != 98123 {
		t.Fatalf("amount=%d known=%v", ev.Amount, ev.AmountKnown)
	}
}

func TestParseLine_SourceClassification(t *testing.T) {
	tests := []struct {
		guid string
		want SourceKind
	}{
		{"Creature-0-1", SourceEnemy},
		{"Vehicle-0-1", SourceEnemy},
		{"Boss-0-1", SourceEnemy},
		{"Player-1-2", SourcePlayer},
		{"Pet-0-1", SourceOther},
		{"0000000000000000", SourceOther},
	}
	for _, tt := range tests {
		t.Run(tt.guid, func(t *testing.T) {
			ev, ok := ParseLine(logLine("10:00:00.000", EventCastSuccess, tt.guid, "src", "dst", 1, "Spell", -1))
			if !ok {
				t.Fatalf("expected ok")
			}
			if ev.Source != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, ev.Source)
			}
		})
	}
}

func TestParseLine_Rejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"short", "4/21 20:15:32.2"},
		{"no double space", "4/21 20:15:32.250 SPELL_CAST_SUCCESS,Creature-0,\"A\""},
		{"single part timestamp", "20:15:32.250  SPELL_CAST_SUCCESS,Creature-0,\"A\""},
		{"bad clock", "4/21 aa:bb:cc.ddd  SPELL_CAST_SUCCESS,Creature-0,\"A\""},
		{"clock missing seconds", "4/21 20:15  SPELL_CAST_SUCCESS,Creature-0,\"Abc\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ParseLine(tt.line); ok {
				t.Errorf("expected line to be rejected: %q", tt.line)
			}
		})
	}
}

func TestParseLine_ShortParamListDoesNotPanic(t *testing.T) {
	ev, ok := ParseLine("4/21 20:15:32.250  ZONE_CHANGE,2657")
	if !ok {
		t.Fatalf("expected ok")
	}
	if ev.Type != "ZONE_CHANGE" || ev.SpellName != "" || ev.DestName != "" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestParseLine_TrailingCarriageReturn(t *testing.T) {
	line := logLine("01:02:03.500", EventCastSuccess, "Creature-0", "Boss", "Tank", 5, "Cleave", -1) + "\r"
	ev, ok := ParseLine(line)
	if !ok {
		t.Fatalf("expected ok")
	}
	if ev.Seconds != 3723.5 {
		t.Fatalf("seconds=%v", ev.Seconds)
	}
}

func TestParseLine_NegativeAmountIgnored(t *testing.T) {
	ev, ok := ParseLine(logLine("01:02:03.500", EventSpellDamage, "Creature-0", "Boss", "Tank", 5, "Cleave", 0))
	if !ok || !ev.AmountKnown {
		t.Fatalf("zero amount should parse")
	}

	line := strings.Replace(logLine("01:02:03.500", EventSpellDamage, "Creature-0", "Boss", "Tank", 5, "Cleave", 7), ",7", ",-7", 1)
	ev, ok = ParseLine(line)
	if !ok {
		t.Fatalf("expected ok")
	}
	if ev.AmountKnown {
		t.Fatalf("negative amount should not be known, got %d", ev.Amount)
	}
}
