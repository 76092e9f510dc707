package mechanics

import (
	"context"
	"errors"
	"fmt"
	"log"

	"raidlab/internal/combatlog"
)

// Classification describes which roles an ability threatens.
type Classification struct {
	Roles       []combatlog.Role `json:"roles"`
	Description string           `json:"description"`
}

// Classifier labels hostile abilities with the roles they affect.
type Classifier interface {
	Classify(ctx context.Context, spells []combatlog.SpellStats) (map[string]Classification, error)
}

// HeuristicClassifier guesses roles from target spread alone. It needs no
// configuration and never fails.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(_ context.Context, spells []combatlog.SpellStats) (map[string]Classification, error) {
	out := make(map[string]Classification, len(spells))
	for _, sp := range spells {
		if _, done := out[sp.Name]; done {
			continue
		}
		out[sp.Name] = ClassifySpell(sp)
	}
	return out, nil
}

// ClassifySpell is the pure heuristic behind HeuristicClassifier.
func ClassifySpell(sp combatlog.SpellStats) Classification {
	var c Classification
	switch n := len(sp.Targets); {
	case n == 0:
		c = Classification{
			Roles:       []combatlog.Role{combatlog.RoleUnknown},
			Description: "No targets observed.",
		}
	case n == 1:
		c = Classification{
			Roles:       []combatlog.Role{combatlog.RoleTank},
			Description: "Always lands on one player; most likely a tank hit.",
		}
	case n >= 4:
		c = Classification{
			Roles:       []combatlog.Role{combatlog.RoleTank, combatlog.RoleHealer, combatlog.RoleMelee, combatlog.RoleRanged},
			Description: "Hits much of the raid; healers should plan cooldowns.",
		}
	default:
		c = Classification{
			Roles:       []combatlog.Role{combatlog.RoleMelee, combatlog.RoleRanged},
			Description: "Lands on a few players; spread out or share the hit.",
		}
	}
	if sp.AvgDamage > 0 {
		c.Description = fmt.Sprintf("%s Averages %d per cast.", c.Description, sp.AvgDamage)
	}
	return c
}

// ClassifyWithFallback asks primary first and fills anything it missed with
// the heuristic. A nil or unavailable primary yields heuristic results only.
func ClassifyWithFallback(ctx context.Context, primary Classifier, spells []combatlog.SpellStats) map[string]Classification {
	heuristic, _ := HeuristicClassifier{}.Classify(ctx, spells)
	if primary == nil {
		return heuristic
	}
	got, err := primary.Classify(ctx, spells)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			log.Printf("⚠️ Ability classification failed, using heuristic: %v", err)
		}
		return heuristic
	}
	if got == nil {
		got = make(map[string]Classification, len(heuristic))
	}
	for name, c := range heuristic {
		if existing, ok := got[name]; !ok || len(existing.Roles) == 0 {
			got[name] = c
		}
	}
	return got
}
