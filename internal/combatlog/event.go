// Package combatlog decodes raw combat-log text into per-ability statistics
// and a roster of combatants.
//
// The log format is one event per line:
//
//	<date> HH:MM:SS.fff  EVENT_TYPE,sourceGUID,"sourceName",...,"destName",...,spellId,"spellName",...
//
// Parsing is tolerant: malformed lines are skipped, never fatal.
package combatlog

import (
	"strconv"
	"strings"
)

// MinLineLength guards against blank and truncated lines.
const MinLineLength = 20

// Event types the aggregator and builder care about.
const (
	EventCastSuccess    = "SPELL_CAST_SUCCESS"
	EventSpellDamage    = "SPELL_DAMAGE"
	EventEncounterStart = "ENCOUNTER_START"
)

// Positional parameter indexes within the comma-separated list.
const (
	fieldEventType  = 0
	fieldSourceGUID = 1
	fieldSourceName = 2
	fieldDestName   = 6
	fieldSpellID    = 9
	fieldSpellName  = 10
	fieldAmount     = 29
)

// SourceKind classifies the unit that produced an event.
type SourceKind uint8

const (
	SourceOther SourceKind = iota
	SourceEnemy
	SourcePlayer
)

func (k SourceKind) String() string {
	switch k {
	case SourceEnemy:
		return "enemy"
	case SourcePlayer:
		return "player"
	default:
		return "other"
	}
}

// Event is one structurally valid log line.
//
// Fields that were not present on the line are left at their zero value;
// AmountKnown reports whether Amount was parsed from the line.
type Event struct {
	Seconds     float64
	Type        string
	SourceGUID  string
	SourceName  string
	Source      SourceKind
	DestName    string
	SpellID     int64
	SpellName   string
	Amount      int64
	AmountKnown bool
}

// Hostile reports whether the event came from an enemy-controlled unit.
func (e Event) Hostile() bool {
	return e.Source == SourceEnemy
}

// HasDest reports whether the event names a destination unit.
func (e Event) HasDest() bool {
	return e.DestName != "" && e.DestName != "nil"
}

// ParseLine decodes a single raw line. It returns ok=false for anything that
// is not a structurally valid event; it never panics on short or odd input.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSuffix(line, "\r")
	if len(line) < MinLineLength {
		return Event{}, false
	}

	sep := strings.Index(line, "  ")
	if sep < 0 {
		return Event{}, false
	}
	prefix := line[:sep]
	body := line[sep+2:]

	secs, ok := parseTimestamp(prefix)
	if !ok {
		return Event{}, false
	}

	params := strings.Split(body, ",")
	ev := Event{
		Seconds:    secs,
		Type:       strings.TrimSpace(field(params, fieldEventType)),
		SourceGUID: field(params, fieldSourceGUID),
		SourceName: unquote(field(params, fieldSourceName)),
		DestName:   unquote(field(params, fieldDestName)),
		SpellName:  unquote(field(params, fieldSpellName)),
	}
	ev.Source = classifySource(ev.SourceGUID)

	if id, err := strconv.ParseInt(strings.TrimSpace(field(params, fieldSpellID)), 10, 64); err == nil {
		ev.SpellID = id
	}
	if amt, err := strconv.ParseInt(strings.TrimSpace(field(params, fieldAmount)), 10, 64); err == nil && amt >= 0 {
		ev.Amount = amt
		ev.AmountKnown = true
	}

	return ev, true
}

// parseTimestamp reads "<date> HH:MM:SS.fff" into seconds since midnight.
func parseTimestamp(prefix string) (float64, bool) {
	parts := strings.Fields(prefix)
	if len(parts) < 2 {
		return 0, false
	}
	clock := strings.Split(parts[1], ":")
	if len(clock) != 3 {
		return 0, false
	}
	h, err := strconv.Atoi(clock[0])
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(clock[1])
	if err != nil || m < 0 {
		return 0, false
	}
	s, err := strconv.ParseFloat(clock[2], 64)
	if err != nil || s < 0 {
		return 0, false
	}
	return float64(h*3600+m*60) + s, true
}

func classifySource(guid string) SourceKind {
	switch {
	case strings.HasPrefix(guid, "Creature"),
		strings.HasPrefix(guid, "Vehicle"),
		strings.HasPrefix(guid, "Boss"):
		return SourceEnemy
	case strings.HasPrefix(guid, "Player"):
		return SourcePlayer
	default:
		return SourceOther
	}
}

// field returns params[i] or "" when the line is too short.
func field(params []string, i int) string {
	if i < 0 || i >= len(params) {
		return ""
	}
	return params[i]
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
