// Package sim runs the encounter survival game: a frame-stepped simulation
// that spawns hazards from a mechanic list and scores how the player
// reacts to them.
package sim

import "raidlab/internal/mechanics"

// Phase is the session state machine position.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseGameOver Phase = "gameover"
)

// Kind classifies a simulation object.
type Kind string

const (
	KindPlayer Kind = "player"
	KindBoss   Kind = "boss"
	KindDanger Kind = "danger"
	KindSafe   Kind = "safe"
)

// Object is anything placed in the arena. Duration is zero for permanent
// objects (player, boss).
type Object struct {
	ID           uint64         `json:"id"`
	X            float64        `json:"x"`
	Y            float64        `json:"y"`
	Radius       float64        `json:"radius"`
	Kind         Kind           `json:"kind"`
	Color        string         `json:"color"`
	CreatedAt    float64        `json:"createdAt"`
	Duration     float64        `json:"duration,omitempty"`
	Mechanic     string         `json:"mechanic,omitempty"`
	MechanicType mechanics.Type `json:"mechanicType,omitempty"`
}

// Permanent reports whether the object never expires.
func (o Object) Permanent() bool {
	return o.Duration <= 0
}

// Age is how long the object has existed at sim time now (ms).
func (o Object) Age(now float64) float64 {
	return now - o.CreatedAt
}

// State is the mutable simulation state. It is owned by exactly one caller
// at a time and only changed through Engine methods.
type State struct {
	Phase     Phase `json:"phase"`
	IsRunning bool  `json:"isRunning"`
	Score     int   `json:"score"`
	HP        int   `json:"hp"`

	Player Object `json:"player"`
	// Objects holds the boss followed by live hazards in spawn order.
	Objects []Object `json:"objects"`

	NextSpawnAt float64 `json:"nextSpawnAt"`
	nextID      uint64
}

// Hazards returns the transient objects currently in the arena.
func (s *State) Hazards() []Object {
	out := make([]Object, 0, len(s.Objects))
	for _, o := range s.Objects {
		if !o.Permanent() {
			out = append(out, o)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *State) Clone() *State {
	c := *s
	c.Objects = append([]Object(nil), s.Objects...)
	return &c
}

func (s *State) newID() uint64 {
	s.nextID++
	return s.nextID
}
