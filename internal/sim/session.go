package sim

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"raidlab/internal/mechanics"
)

// Snapshot is an immutable copy of a session for readers outside the
// frame loop (HTTP, websocket, renderer).
type Snapshot struct {
	SessionID    string               `json:"sessionId"`
	LogID        string               `json:"logId"`
	Encounter    string               `json:"encounter"`
	Frame        uint64               `json:"frame"`
	Clock        float64              `json:"clock"`
	Elapsed      float64              `json:"elapsed"` // ms survived in the current run
	ArenaSize    float64              `json:"arenaSize"`
	Phase        Phase                `json:"phase"`
	IsRunning    bool                 `json:"isRunning"`
	Score        int                  `json:"score"`
	HP           int                  `json:"hp"`
	MaxHP        int                  `json:"maxHp"`
	Player       Object               `json:"player"`
	Objects      []Object             `json:"objects"`
	Announcement *Announcement        `json:"announcement,omitempty"`
	Mechanics    []mechanics.Mechanic `json:"mechanics"`
}

// FrameHook observes a finished frame.
type FrameHook func(snap *Snapshot, res StepResult, took time.Duration)

// SessionOptions tunes a session host.
type SessionOptions struct {
	ID        string
	LogID     string
	Encounter string
	FPS       int
	// Clock returns monotonic time since an arbitrary epoch. Defaults to
	// time.Since of the session creation.
	Clock func() time.Duration
	// OnFrame runs after every frame, outside the session lock. took is
	// the time spent stepping and publishing.
	OnFrame FrameHook
}

// Session hosts one simulation: it owns the State, schedules frames on a
// ticker and publishes a snapshot after each one.
type Session struct {
	id        string
	logID     string
	encounter string
	engine    *Engine
	keys      KeyState
	clock     func() time.Duration
	onFrame   FrameHook
	interval  time.Duration

	mu           sync.Mutex
	state        *State
	lastFrame    float64
	startedAt    float64
	endedAt      float64
	frame        uint64
	announcement *Announcement
	stopCh       chan struct{}

	snapshot   atomic.Pointer[Snapshot]
	lastActive atomic.Int64
}

// NewSession creates an idle session around an engine.
func NewSession(engine *Engine, opts SessionOptions) *Session {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	clock := opts.Clock
	if clock == nil {
		epoch := time.Now()
		clock = func() time.Duration { return time.Since(epoch) }
	}
	s := &Session{
		id:        opts.ID,
		logID:     opts.LogID,
		encounter: opts.Encounter,
		engine:    engine,
		clock:     clock,
		onFrame:   opts.OnFrame,
		interval:  time.Second / time.Duration(opts.FPS),
		state:     engine.NewState(),
	}
	s.touch()
	s.mu.Lock()
	s.publishLocked(s.nowMs())
	s.mu.Unlock()
	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) LogID() string     { return s.logID }
func (s *Session) Encounter() string { return s.encounter }

// Snapshot returns the last published frame.
func (s *Session) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// LastActive is when a client last touched the session.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// SetInput replaces the directional key state.
func (s *Session) SetInput(in Input) {
	s.keys.Replace(in)
	s.touch()
}

// SetKey presses or releases one key.
func (s *Session) SetKey(k Key, pressed bool) {
	s.keys.Set(k, pressed)
	s.touch()
}

// Start begins play from idle and starts the frame loop.
func (s *Session) Start() bool {
	s.touch()
	s.mu.Lock()
	now := s.nowMs()
	if !s.engine.Start(s.state, now) {
		s.mu.Unlock()
		return false
	}
	s.beginLocked(now)
	s.mu.Unlock()
	log.Printf("🎮 Session %s started (%s)", s.id, s.encounter)
	return true
}

// Restart resets the state and plays again from any phase.
func (s *Session) Restart() {
	s.touch()
	s.mu.Lock()
	now := s.nowMs()
	s.engine.Restart(s.state, now)
	s.beginLocked(now)
	s.mu.Unlock()
	log.Printf("🔄 Session %s restarted", s.id)
}

// Stop halts the frame loop. A frame already waiting on the lock sees a
// stopped state and does nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Stop(s.state)
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	s.publishLocked(s.nowMs())
}

func (s *Session) beginLocked(now float64) {
	s.lastFrame = now
	s.startedAt = now
	s.endedAt = 0
	s.announcement = nil
	s.publishLocked(now)
	if s.stopCh == nil {
		s.stopCh = make(chan struct{})
		go s.loop(s.stopCh)
	}
}

func (s *Session) loop(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			if !s.Tick() && !s.keepLooping(stop) {
				return
			}
		case <-stop:
			return
		}
	}
}

// keepLooping decides whether a loop whose last frame ended the run should
// carry on. A Restart that landed between that frame and this check found
// the loop still registered and started none, so the loop keeps the
// restarted run going.
func (s *Session) keepLooping(stop chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != stop {
		return false
	}
	if s.state.IsRunning {
		return true
	}
	s.stopCh = nil
	return false
}

// Tick runs one frame at the current clock and reports whether the
// session is still running. Hosts without a ticker call it directly.
func (s *Session) Tick() bool {
	s.mu.Lock()
	if !s.state.IsRunning {
		s.mu.Unlock()
		return false
	}
	started := time.Now()
	now := s.nowMs()
	dt := (now - s.lastFrame) / 1000
	s.lastFrame = now
	res := s.engine.Step(s.state, s.keys.Input(), dt, now)
	s.frame++
	if res.GameOver {
		s.endedAt = now
	}
	if res.Announcement != nil {
		s.announcement = res.Announcement
	} else if s.announcement != nil && now >= s.announcement.ExpiresAt {
		s.announcement = nil
	}
	snap := s.publishLocked(now)
	running := s.state.IsRunning
	s.mu.Unlock()
	took := time.Since(started)

	if res.GameOver {
		log.Printf("💀 Session %s game over, score %d", s.id, snap.Score)
	}
	if s.onFrame != nil {
		s.onFrame(snap, res, took)
	}
	return running
}

func (s *Session) publishLocked(now float64) *Snapshot {
	st := s.state.Clone()
	snap := &Snapshot{
		SessionID: s.id,
		LogID:     s.logID,
		Encounter: s.encounter,
		Frame:     s.frame,
		Clock:     now,
		ArenaSize: s.engine.cfg.ArenaSize,
		Phase:     st.Phase,
		IsRunning: st.IsRunning,
		Score:     st.Score,
		HP:        st.HP,
		MaxHP:     s.engine.cfg.MaxHP,
		Player:    st.Player,
		Objects:   st.Objects,
		Mechanics: s.engine.Mechanics(),
	}
	switch st.Phase {
	case PhaseRunning:
		snap.Elapsed = now - s.startedAt
	case PhaseGameOver:
		snap.Elapsed = s.endedAt - s.startedAt
	}
	if s.announcement != nil {
		a := *s.announcement
		snap.Announcement = &a
	}
	s.snapshot.Store(snap)
	return snap
}

func (s *Session) nowMs() float64 {
	return float64(s.clock()) / float64(time.Millisecond)
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}
