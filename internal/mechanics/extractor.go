package mechanics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"raidlab/internal/combatlog"
)

// ErrUnavailable reports that an enricher is not configured. It triggers
// the next source in the chain and is not treated as a failure.
var ErrUnavailable = errors.New("mechanics: enricher unavailable")

// SourceFallback names the built-in last-resort source.
const SourceFallback = "fallback"

// Enricher infers mechanics from an encounter's hostile ability names.
type Enricher interface {
	Name() string
	Mechanics(ctx context.Context, encounter string, abilities []string) ([]Mechanic, error)
}

// Extractor runs enrichers in order and degrades to a generic mechanic
// when none of them produce anything.
type Extractor struct {
	enrichers []Enricher

	// OnSource, if set, is called with the name of the source that produced
	// each extraction result.
	OnSource func(source string)
}

// NewExtractor creates an extractor over the given enrichers. Nil entries
// are ignored.
func NewExtractor(enrichers ...Enricher) *Extractor {
	x := &Extractor{}
	for _, e := range enrichers {
		if e != nil {
			x.enrichers = append(x.enrichers, e)
		}
	}
	return x
}

// Extract always returns at least one mechanic.
func (x *Extractor) Extract(ctx context.Context, summary *combatlog.LogSummary) []Mechanic {
	list, _ := x.ExtractWithSource(ctx, summary)
	return list
}

// ExtractWithSource is Extract plus the name of the source that won.
func (x *Extractor) ExtractWithSource(ctx context.Context, summary *combatlog.LogSummary) ([]Mechanic, string) {
	encounter := encounterName(summary)
	var abilities []string
	if summary != nil {
		abilities = summary.HostileAbilityNames()
	}

	for _, e := range x.enrichers {
		list, err := e.Mechanics(ctx, encounter, abilities)
		switch {
		case errors.Is(err, ErrUnavailable):
			continue
		case err != nil:
			log.Printf("⚠️ Mechanic source %s failed, trying next: %v", e.Name(), err)
			continue
		case len(list) == 0:
			continue
		}
		x.report(e.Name())
		return SanitizeAll(list), e.Name()
	}

	x.report(SourceFallback)
	return []Mechanic{Fallback(encounter)}, SourceFallback
}

func (x *Extractor) report(source string) {
	if x.OnSource != nil {
		x.OnSource(source)
	}
}

// Fallback builds the single generic dodge mechanic for an encounter.
func Fallback(encounter string) Mechanic {
	if strings.TrimSpace(encounter) == "" {
		encounter = "Unknown Encounter"
	}
	return Sanitize(Mechanic{
		Name:        fmt.Sprintf("%s: Incoming Blast", encounter),
		Type:        TypeDodge,
		Description: fmt.Sprintf("A generic area attack from %s. Move out of the marked zone before it lands.", encounter),
		Damage:      20,
		Interval:    DefaultInterval,
		Radius:      80,
	})
}

func encounterName(summary *combatlog.LogSummary) string {
	if summary == nil {
		return ""
	}
	return strings.TrimSpace(summary.EncounterName)
}
