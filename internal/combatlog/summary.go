package combatlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrEmptyInput is returned when the log has zero length.
	ErrEmptyInput = errors.New("combatlog: empty input")
	// ErrNoValidEvents is returned when every line was rejected by the parser.
	ErrNoValidEvents = errors.New("combatlog: no valid events")
)

// maxLineBytes bounds a single scanned line.
const maxLineBytes = 1 << 20

// Category of an ability, derived from the hostility of its caster.
type Category string

const (
	CategoryHostile  Category = "hostile"
	CategoryFriendly Category = "friendly"
)

// Role is the inferred raid role of a combatant.
type Role string

const (
	RoleTank    Role = "Tank"
	RoleHealer  Role = "Healer"
	RoleMelee   Role = "Melee"
	RoleRanged  Role = "Ranged"
	RoleUnknown Role = "Unknown"
)

// SpellStats aggregates every observation of one ability for one hostility.
type SpellStats struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Category    Category  `json:"category"`
	Count       int       `json:"count"`
	TotalDamage int64     `json:"totalDamage"`
	AvgDamage   int64     `json:"avgDamage"`
	Source      string    `json:"source"`
	Targets     []string  `json:"targets"`
	Timestamps  []float64 `json:"timestamp"`
}

// Hostile reports whether the ability was cast by an enemy unit.
func (s SpellStats) Hostile() bool {
	return s.Category == CategoryHostile
}

// Combatant is a unit that enemy abilities were observed landing on.
type Combatant struct {
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Class string `json:"class,omitempty"`
}

// LogSummary is the immutable result of parsing one log.
type LogSummary struct {
	EncounterName    string       `json:"encounterName"`
	Duration         float64      `json:"duration"`
	Spells           []SpellStats `json:"spells"`
	Combatants       []Combatant  `json:"combatants"`
	StartTime        float64      `json:"startTime"`
	EndTime          float64      `json:"endTime"`
	RawLineCount     int          `json:"rawLineCount"`
	SkippedLineCount int          `json:"skippedLineCount"`
}

// HostileSpells returns the enemy abilities in summary order.
func (s *LogSummary) HostileSpells() []SpellStats {
	out := make([]SpellStats, 0, len(s.Spells))
	for _, sp := range s.Spells {
		if sp.Hostile() {
			out = append(out, sp)
		}
	}
	return out
}

// HostileAbilityNames returns the distinct enemy ability names in summary order.
func (s *LogSummary) HostileAbilityNames() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, sp := range s.Spells {
		if !sp.Hostile() {
			continue
		}
		if _, ok := seen[sp.Name]; ok {
			continue
		}
		seen[sp.Name] = struct{}{}
		out = append(out, sp.Name)
	}
	return out
}

// Build parses a complete log held in memory.
func Build(raw string) (*LogSummary, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}
	return BuildFromReader(strings.NewReader(raw))
}

// BuildFromReader streams a log line by line through the parser and
// aggregator. Each call owns its own aggregation state. A line longer than
// maxLineBytes is counted as skipped like any other malformed line.
func BuildFromReader(r io.Reader) (*LogSummary, error) {
	agg := NewAggregator()
	br := bufio.NewReaderSize(r, 64*1024)

	var bytesRead int
	var buf []byte
	for {
		line, n, overlong, err := readLine(br, buf[:0])
		buf = line
		bytesRead += n
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read log: %w", err)
		}
		if n > 0 {
			if ev, ok := ParseLine(string(line)); ok && !overlong {
				agg.Add(ev)
			} else {
				agg.Skip()
			}
		}
		if err != nil {
			break
		}
	}
	if bytesRead == 0 {
		return nil, ErrEmptyInput
	}

	summary := agg.Summary()
	if summary.RawLineCount == 0 {
		return nil, ErrNoValidEvents
	}
	return summary, nil
}

// readLine reads one line without its terminator into buf. n counts every
// byte consumed, terminator included. Once a line grows past maxLineBytes
// the rest of it is drained and discarded and overlong is set.
func readLine(br *bufio.Reader, buf []byte) (line []byte, n int, overlong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		n += len(chunk)
		if !overlong {
			if len(buf)+len(chunk) > maxLineBytes+1 {
				overlong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		buf = bytes.TrimSuffix(buf, []byte("\n"))
		return buf, n, overlong, err
	}
}
