package combatlog

import "math"

type spellKey struct {
	name    string
	hostile bool
}

type spellEntry struct {
	stats   SpellStats
	targets map[string]struct{}
}

// Aggregator folds decoded events into per-ability statistics and a
// combatant registry. It is not safe for concurrent use; give each parse
// its own Aggregator.
type Aggregator struct {
	spells     map[spellKey]*spellEntry
	spellOrder []spellKey

	combatants     map[string]*Combatant
	combatantOrder []string

	encounterName string
	startTime     float64
	endTime       float64
	started       bool

	validLines   int
	skippedLines int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		spells:     make(map[spellKey]*spellEntry),
		combatants: make(map[string]*Combatant),
	}
}

// Skip records a line the parser rejected.
func (a *Aggregator) Skip() {
	a.skippedLines++
}

// Add folds one structurally valid event.
func (a *Aggregator) Add(ev Event) {
	a.validLines++
	if !a.started {
		a.startTime = ev.Seconds
		a.started = true
	}
	a.endTime = ev.Seconds

	switch ev.Type {
	case EventEncounterStart:
		// ENCOUNTER_START,encounterID,"encounterName",...
		a.encounterName = ev.SourceName
		a.startTime = ev.Seconds
		return
	case EventCastSuccess, EventSpellDamage:
	default:
		return
	}

	if ev.Source == SourceOther || ev.SpellName == "" {
		return
	}

	key := spellKey{name: ev.SpellName, hostile: ev.Hostile()}
	entry, ok := a.spells[key]
	if !ok {
		category := CategoryFriendly
		if key.hostile {
			category = CategoryHostile
		}
		entry = &spellEntry{
			stats: SpellStats{
				ID:       ev.SpellID,
				Name:     ev.SpellName,
				Category: category,
				Source:   ev.SourceName,
			},
			targets: make(map[string]struct{}),
		}
		a.spells[key] = entry
		a.spellOrder = append(a.spellOrder, key)
	}

	st := &entry.stats
	st.Count++
	st.Timestamps = append(st.Timestamps, ev.Seconds-a.startTime)

	if ev.HasDest() {
		if _, seen := entry.targets[ev.DestName]; !seen {
			entry.targets[ev.DestName] = struct{}{}
			st.Targets = append(st.Targets, ev.DestName)
		}
		if ev.Hostile() {
			a.registerCombatant(ev.DestName)
		}
	}

	if ev.Type == EventSpellDamage && ev.AmountKnown {
		st.TotalDamage += ev.Amount
	}
	st.AvgDamage = int64(math.Round(float64(st.TotalDamage) / float64(st.Count)))
}

func (a *Aggregator) registerCombatant(name string) {
	if _, ok := a.combatants[name]; ok {
		return
	}
	a.combatants[name] = &Combatant{Name: name, Role: RoleUnknown}
	a.combatantOrder = append(a.combatantOrder, name)
}

// ValidLines is the number of structurally valid lines folded so far.
func (a *Aggregator) ValidLines() int {
	return a.validLines
}

// Summary snapshots the current aggregation state. The returned summary
// shares no memory with the aggregator.
func (a *Aggregator) Summary() *LogSummary {
	spells := make([]SpellStats, 0, len(a.spellOrder))
	for _, key := range a.spellOrder {
		st := a.spells[key].stats
		st.Targets = append([]string(nil), st.Targets...)
		st.Timestamps = append([]float64(nil), st.Timestamps...)
		if st.Targets == nil {
			st.Targets = []string{}
		}
		if st.Timestamps == nil {
			st.Timestamps = []float64{}
		}
		spells = append(spells, st)
	}

	combatants := make([]Combatant, 0, len(a.combatantOrder))
	for _, name := range a.combatantOrder {
		combatants = append(combatants, *a.combatants[name])
	}

	return &LogSummary{
		EncounterName:    a.encounterName,
		Duration:         a.endTime - a.startTime,
		Spells:           spells,
		Combatants:       combatants,
		StartTime:        a.startTime,
		EndTime:          a.endTime,
		RawLineCount:     a.validLines,
		SkippedLineCount: a.skippedLines,
	}
}
