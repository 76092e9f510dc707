package sim

import (
	"math"
	"math/rand"

	"raidlab/internal/mechanics"
)

// Config holds arena geometry and scoring rules. Times are milliseconds,
// distances pixels, speed pixels per second.
type Config struct {
	ArenaSize       float64
	PlayerRadius    float64
	PlayerSpeed     float64
	PlayerSpawnX    float64
	PlayerSpawnY    float64
	BossX           float64
	BossY           float64
	BossRadius      float64
	BossColor       string
	PlayerColor     string
	HazardLifetime  float64
	DangerMargin    float64
	FirstSpawnDelay float64
	AnnouncementTTL float64
	MaxHP           int
	HitPenalty      int
	DodgeReward     int
	SoakReward      int
}

// DefaultConfig returns the standard 600x600 arena.
func DefaultConfig() Config {
	return Config{
		ArenaSize:       600,
		PlayerRadius:    12,
		PlayerSpeed:     250,
		PlayerSpawnX:    300,
		PlayerSpawnY:    500,
		BossX:           300,
		BossY:           120,
		BossRadius:      40,
		BossColor:       "#8b0000",
		PlayerColor:     "#4da6ff",
		HazardLifetime:  2000,
		DangerMargin:    10,
		FirstSpawnDelay: 2000,
		AnnouncementTTL: 1500,
		MaxHP:           100,
		HitPenalty:      20,
		DodgeReward:     50,
		SoakReward:      100,
	}
}

// Outcome is how a hazard resolved.
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeDodge Outcome = "dodge"
	OutcomeSoak  Outcome = "soak"
)

// Favorable reports whether the outcome rewarded the player.
func (o Outcome) Favorable() bool {
	return o != OutcomeHit
}

// Resolution records the one-shot evaluation of an expired hazard.
type Resolution struct {
	HazardID   uint64  `json:"hazardId"`
	Mechanic   string  `json:"mechanic"`
	Kind       Kind    `json:"kind"`
	Outcome    Outcome `json:"outcome"`
	Distance   float64 `json:"distance"`
	ScoreDelta int     `json:"scoreDelta"`
	HPDelta    int     `json:"hpDelta"`
}

// Announcement is the transient "incoming mechanic" signal raised on spawn.
// It belongs to presentation and never feeds back into State.
type Announcement struct {
	Name      string         `json:"name"`
	Type      mechanics.Type `json:"type"`
	ExpiresAt float64        `json:"expiresAt"`
}

// StepResult describes what one frame did.
type StepResult struct {
	Spawned      *Object       `json:"spawned,omitempty"`
	Announcement *Announcement `json:"announcement,omitempty"`
	Resolutions  []Resolution  `json:"resolutions,omitempty"`
	GameOver     bool          `json:"gameOver"`
}

// Engine applies the simulation rules to a State. It holds the mechanic
// list and the random source; it keeps no per-frame state of its own, so
// one Engine must not be stepped from two goroutines at once.
type Engine struct {
	cfg       Config
	mechanics []mechanics.Mechanic
	rng       *rand.Rand
	seed      int64
}

// NewEngine creates an engine over a mechanic list. The same seed and the
// same sequence of Step arguments always produce the same states.
func NewEngine(cfg Config, list []mechanics.Mechanic, seed int64) *Engine {
	return &Engine{
		cfg:       cfg,
		mechanics: append([]mechanics.Mechanic(nil), list...),
		rng:       rand.New(rand.NewSource(seed)),
		seed:      seed,
	}
}

func (e *Engine) Config() Config                  { return e.cfg }
func (e *Engine) Seed() int64                     { return e.seed }
func (e *Engine) Mechanics() []mechanics.Mechanic { return append([]mechanics.Mechanic(nil), e.mechanics...) }

// NewState returns an idle state with defaults applied.
func (e *Engine) NewState() *State {
	s := &State{}
	e.reset(s)
	return s
}

// Start moves an idle state to running. Running and game-over states are
// left alone; game over needs Restart.
func (e *Engine) Start(s *State, now float64) bool {
	if s.Phase != PhaseIdle {
		return false
	}
	e.reset(s)
	e.run(s, now)
	return true
}

// Restart resets score, health, player and objects and runs again.
func (e *Engine) Restart(s *State, now float64) {
	e.reset(s)
	e.run(s, now)
}

// Stop halts a running state without resolving anything. Stepping a
// stopped state is a no-op.
func (e *Engine) Stop(s *State) {
	if s.Phase == PhaseRunning {
		s.Phase = PhaseIdle
	}
	s.IsRunning = false
}

func (e *Engine) reset(s *State) {
	s.Phase = PhaseIdle
	s.IsRunning = false
	s.Score = 0
	s.HP = e.cfg.MaxHP
	s.NextSpawnAt = 0
	s.Player = Object{
		ID:     s.newID(),
		X:      e.cfg.PlayerSpawnX,
		Y:      e.cfg.PlayerSpawnY,
		Radius: e.cfg.PlayerRadius,
		Kind:   KindPlayer,
		Color:  e.cfg.PlayerColor,
	}
	s.Objects = append(s.Objects[:0], Object{
		ID:     s.newID(),
		X:      e.cfg.BossX,
		Y:      e.cfg.BossY,
		Radius: e.cfg.BossRadius,
		Kind:   KindBoss,
		Color:  e.cfg.BossColor,
	})
}

func (e *Engine) run(s *State, now float64) {
	s.Phase = PhaseRunning
	s.IsRunning = true
	s.Player.CreatedAt = now
	s.Objects[0].CreatedAt = now
	s.NextSpawnAt = now + e.cfg.FirstSpawnDelay
}

// Step advances one frame. dt is seconds since the previous frame, now is
// the simulation clock in milliseconds. Order: input, spawn, resolution,
// terminal check.
func (e *Engine) Step(s *State, in Input, dt, now float64) StepResult {
	var res StepResult
	if !s.IsRunning || s.Phase != PhaseRunning {
		return res
	}
	if dt < 0 {
		dt = 0
	}

	e.movePlayer(s, in, dt)

	if len(e.mechanics) > 0 && now >= s.NextSpawnAt {
		m := e.mechanics[e.rng.Intn(len(e.mechanics))]
		obj := e.spawn(s, m, now)
		res.Spawned = &obj
		res.Announcement = &Announcement{
			Name:      m.Name,
			Type:      m.Type,
			ExpiresAt: now + e.cfg.AnnouncementTTL,
		}
		interval := float64(m.Interval)
		if interval < mechanics.MinInterval {
			interval = mechanics.MinInterval
		}
		s.NextSpawnAt = now + interval
	}

	res.Resolutions = e.resolveExpired(s, now)

	if s.HP <= 0 {
		s.HP = 0
		s.Phase = PhaseGameOver
		s.IsRunning = false
		res.GameOver = true
	}
	return res
}

func (e *Engine) movePlayer(s *State, in Input, dt float64) {
	dx, dy := in.Direction()
	if dx == 0 && dy == 0 {
		return
	}
	step := e.cfg.PlayerSpeed * dt
	s.Player.X = clamp(s.Player.X+dx*step, s.Player.Radius, e.cfg.ArenaSize-s.Player.Radius)
	s.Player.Y = clamp(s.Player.Y+dy*step, s.Player.Radius, e.cfg.ArenaSize-s.Player.Radius)
}

func (e *Engine) spawn(s *State, m mechanics.Mechanic, now float64) Object {
	kind := KindDanger
	if m.Type == mechanics.TypeSoak {
		kind = KindSafe
	}
	color := m.Color
	if color == "" {
		color = mechanics.DefaultColor(m.Type)
	}
	obj := Object{
		ID:           s.newID(),
		X:            e.randomCoord(m.Radius),
		Y:            e.randomCoord(m.Radius),
		Radius:       m.Radius,
		Kind:         kind,
		Color:        color,
		CreatedAt:    now,
		Duration:     e.cfg.HazardLifetime,
		Mechanic:     m.Name,
		MechanicType: m.Type,
	}
	s.Objects = append(s.Objects, obj)
	return obj
}

// randomCoord picks a center that keeps a circle of radius r inside the
// arena, or the arena center when r does not fit.
func (e *Engine) randomCoord(r float64) float64 {
	span := e.cfg.ArenaSize - 2*r
	if span <= 0 {
		return e.cfg.ArenaSize / 2
	}
	return r + e.rng.Float64()*span
}

// resolveExpired evaluates and removes every hazard at or past its
// lifetime. Resolution stops once health is gone.
func (e *Engine) resolveExpired(s *State, now float64) []Resolution {
	var out []Resolution
	kept := s.Objects[:0]
	for _, o := range s.Objects {
		if o.Permanent() || o.Age(now) < o.Duration || s.HP <= 0 {
			kept = append(kept, o)
			continue
		}
		r := e.resolve(s, o)
		out = append(out, r)
	}
	s.Objects = kept
	return out
}

func (e *Engine) resolve(s *State, o Object) Resolution {
	d := Distance(s.Player.X, s.Player.Y, o.X, o.Y)
	r := Resolution{HazardID: o.ID, Mechanic: o.Mechanic, Kind: o.Kind, Distance: d}

	var hit bool
	switch o.Kind {
	case KindSafe:
		hit = !InsideSoak(d, o.Radius)
		r.Outcome = OutcomeSoak
	default:
		hit = InsideDanger(d, o.Radius, e.cfg.DangerMargin)
		r.Outcome = OutcomeDodge
	}

	if hit {
		r.Outcome = OutcomeHit
		before := s.HP
		s.HP -= e.cfg.HitPenalty
		if s.HP < 0 {
			s.HP = 0
		}
		r.HPDelta = s.HP - before
		return r
	}

	if o.Kind == KindSafe {
		r.ScoreDelta = e.cfg.SoakReward
	} else {
		r.ScoreDelta = e.cfg.DodgeReward
	}
	s.Score += r.ScoreDelta
	return r
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}
