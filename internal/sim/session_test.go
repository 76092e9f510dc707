package sim

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"raidlab/internal/mechanics"
)

// fakeClock is advanced by hand so frames are deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

func newTestSession(list []mechanics.Mechanic, clock *fakeClock, onFrame FrameHook) *Session {
	return NewSession(NewEngine(DefaultConfig(), list, 5), SessionOptions{
		ID:        "s1",
		LogID:     "demo",
		Encounter: "Demo",
		FPS:       1, // keep the background ticker out of the way
		Clock:     clock.Now,
		OnFrame:   onFrame,
	})
}

func TestSession_TickUsesClockDeltas(t *testing.T) {
	clock := &fakeClock{}
	var frames atomic.Int32
	s := newTestSession(nil, clock, func(*Snapshot, StepResult, time.Duration) { frames.Add(1) })
	defer s.Stop()

	snap := s.Snapshot()
	if snap == nil || snap.Phase != PhaseIdle || snap.HP != 100 {
		t.Fatalf("initial snapshot=%+v", snap)
	}
	if s.Tick() {
		t.Fatal("tick on idle session should report not running")
	}

	if !s.Start() {
		t.Fatal("Start failed")
	}
	s.SetInput(Input{Left: true})
	clock.Advance(200 * time.Millisecond)
	if !s.Tick() {
		t.Fatal("session should keep running")
	}

	snap = s.Snapshot()
	if snap.Player.X != 250 {
		t.Errorf("player x=%v, want 250 after 0.2s at 250px/s", snap.Player.X)
	}
	if snap.Frame != 1 || snap.Clock != 200 || snap.Elapsed != 200 {
		t.Errorf("frame=%d clock=%v elapsed=%v", snap.Frame, snap.Clock, snap.Elapsed)
	}
	if frames.Load() != 1 {
		t.Errorf("OnFrame calls=%d", frames.Load())
	}
}

func TestSession_AnnouncementExpires(t *testing.T) {
	clock := &fakeClock{}
	s := newTestSession([]mechanics.Mechanic{dodgeMechanic()}, clock, nil)
	defer s.Stop()
	s.Start()

	clock.Advance(2 * time.Second)
	s.Tick()
	a := s.Snapshot().Announcement
	if a == nil || a.Name != "Inferno Blast" {
		t.Fatalf("announcement=%+v", a)
	}

	clock.Advance(1600 * time.Millisecond)
	s.Tick()
	if a := s.Snapshot().Announcement; a != nil {
		t.Errorf("announcement should have cleared: %+v", a)
	}
}

func TestSession_StopThenTickIsNoop(t *testing.T) {
	clock := &fakeClock{}
	s := newTestSession([]mechanics.Mechanic{dodgeMechanic()}, clock, nil)
	s.Start()
	s.Stop()
	s.Stop()

	clock.Advance(10 * time.Second)
	if s.Tick() {
		t.Fatal("tick after stop should not run")
	}
	snap := s.Snapshot()
	if snap.IsRunning || snap.Phase != PhaseIdle || len(snap.Objects) != 1 {
		t.Errorf("snapshot=%+v", snap)
	}
}

func TestSession_RestartAfterStop(t *testing.T) {
	clock := &fakeClock{}
	s := newTestSession(nil, clock, nil)
	defer s.Stop()
	s.Start()
	s.Stop()
	s.Restart()
	if snap := s.Snapshot(); !snap.IsRunning || snap.Phase != PhaseRunning {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestSession_BackgroundLoop(t *testing.T) {
	s := NewSession(NewEngine(DefaultConfig(), nil, 1), SessionOptions{ID: "loop", FPS: 100})
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Stop()
	frame := s.Snapshot().Frame
	if frame == 0 {
		t.Fatal("background loop produced no frames")
	}
	time.Sleep(50 * time.Millisecond)
	if got := s.Snapshot().Frame; got != frame {
		t.Errorf("frames advanced after stop: %d -> %d", frame, got)
	}
}

func TestSession_RestartFromGameOverFrameKeepsLooping(t *testing.T) {
	// One hazard fills the whole arena and ends the run on its first hit.
	cfg := DefaultConfig()
	cfg.ArenaSize = 400
	cfg.PlayerSpawnX, cfg.PlayerSpawnY = 200, 200
	cfg.MaxHP = cfg.HitPenalty
	cfg.FirstSpawnDelay = 0
	cfg.HazardLifetime = 10
	blast := mechanics.Mechanic{Name: "Wall of Fire", Type: mechanics.TypeDodge, Interval: 250, Radius: 200}

	var s *Session
	var gameOvers atomic.Int32
	done := make(chan struct{})
	s = NewSession(NewEngine(cfg, []mechanics.Mechanic{blast}, 1), SessionOptions{
		ID:  "again",
		FPS: 200,
		OnFrame: func(_ *Snapshot, res StepResult, _ time.Duration) {
			if !res.GameOver {
				return
			}
			switch gameOvers.Add(1) {
			case 1:
				s.Restart()
			case 2:
				close(done)
			}
		},
	})
	defer s.Stop()

	s.Start()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		snap := s.Snapshot()
		t.Fatalf("restarted run never finished: game overs=%d phase=%s frame=%d",
			gameOvers.Load(), snap.Phase, snap.Frame)
	}
}

func TestManager(t *testing.T) {
	m := NewManager(ManagerConfig{MaxSessions: 2, FPS: 30, Engine: DefaultConfig(), Seed: 1})
	defer m.StopAll()

	a, err := m.Create("log-a", "A", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create("log-b", "B", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create("log-c", "C", nil); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("err=%v, want ErrTooManySessions", err)
	}

	got, err := m.Get(a.ID())
	if err != nil || got != a {
		t.Fatalf("Get: %v", err)
	}
	if a.LogID() != "log-a" {
		t.Errorf("logID=%q", a.LogID())
	}

	a.Start()
	if m.Running() != 1 {
		t.Errorf("running=%d", m.Running())
	}

	if err := m.Delete(a.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if a.Snapshot().IsRunning {
		t.Error("deleted session should be stopped")
	}
	if _, err := m.Get(a.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err=%v", err)
	}
	if err := m.Delete(a.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err=%v", err)
	}
	if m.Len() != 1 {
		t.Errorf("len=%d", m.Len())
	}

	time.Sleep(5 * time.Millisecond)
	if n := m.Reap(time.Millisecond); n != 1 || m.Len() != 0 {
		t.Errorf("reaped=%d len=%d", n, m.Len())
	}
}
