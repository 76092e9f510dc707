package sim

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"raidlab/internal/mechanics"
)

var (
	ErrTooManySessions = errors.New("sim: session limit reached")
	ErrSessionNotFound = errors.New("sim: session not found")
)

// ManagerConfig sets limits for a Manager.
type ManagerConfig struct {
	MaxSessions int
	FPS         int
	Engine      Config
	// Seed, when non-zero, makes every session deterministic.
	Seed int64
	// OnFrame is passed to every session.
	OnFrame FrameHook
}

// Manager owns live sessions keyed by id.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 100
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Create starts tracking a new idle session.
func (m *Manager) Create(logID, encounter string, list []mechanics.Mechanic) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}

	seed := m.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	id := uuid.NewString()
	sess := NewSession(NewEngine(m.cfg.Engine, list, seed), SessionOptions{
		ID:        id,
		LogID:     logID,
		Encounter: encounter,
		FPS:       m.cfg.FPS,
		OnFrame:   m.cfg.OnFrame,
	})
	m.sessions[id] = sess
	return sess, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete stops and forgets a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.Stop()
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Running counts sessions whose frame loop is active.
func (m *Manager) Running() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if snap := s.Snapshot(); snap != nil && snap.IsRunning {
			n++
		}
	}
	return n
}

// Reap removes sessions untouched for longer than maxIdle.
func (m *Manager) Reap(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	var stale []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Stop()
	}
	if len(stale) > 0 {
		log.Printf("🧹 Reaped %d idle sessions", len(stale))
	}
	return len(stale)
}

// StopAll stops every session. Used on shutdown.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		s.Stop()
	}
}
