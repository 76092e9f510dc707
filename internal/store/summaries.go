// Package store keeps parsed log summaries in memory so clients can refer
// to an upload by id across requests.
package store

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"raidlab/internal/combatlog"
	"raidlab/internal/mechanics"
)

const (
	DefaultMaxSummaries = 200
	DefaultSummaryTTL   = 2 * time.Hour
)

// Entry is one stored summary plus enrichment results computed for it.
// Summary is shared and must be treated as read-only.
type Entry struct {
	ID        string
	Summary   *combatlog.LogSummary
	StoredAt  time.Time
	Mechanics []mechanics.Mechanic
	// MechanicsSource names the enricher that produced Mechanics.
	MechanicsSource string
	Classifications map[string]mechanics.Classification
}

// Summaries is an LRU of summaries with a TTL.
type Summaries struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string // least recently used first
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewSummaries creates an empty store. Zero arguments pick defaults.
func NewSummaries(maxSize int, ttl time.Duration) *Summaries {
	if maxSize <= 0 {
		maxSize = DefaultMaxSummaries
	}
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &Summaries{
		entries:  make(map[string]*Entry),
		order:    make([]string, 0, maxSize),
		maxSize:  maxSize,
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Put stores a summary under a fresh id.
func (s *Summaries) Put(summary *combatlog.LogSummary) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.entries) >= s.maxSize {
		s.evict()
	}
	s.entries[id] = &Entry{ID: id, Summary: summary, StoredAt: s.now()}
	s.order = append(s.order, id)
	return id
}

// Get returns a copy of the entry, or false when it is missing or expired.
func (s *Summaries) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	if s.now().Sub(e.StoredAt) > s.ttl {
		s.remove(id)
		return Entry{}, false
	}
	s.touch(id)
	return *e, true
}

// SetMechanics records extracted mechanics for an entry.
func (s *Summaries) SetMechanics(id string, list []mechanics.Mechanic, source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.Mechanics = append([]mechanics.Mechanic(nil), list...)
	e.MechanicsSource = source
	return true
}

// SetClassifications records ability classifications for an entry.
func (s *Summaries) SetClassifications(id string, c map[string]mechanics.Classification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.Classifications = c
	return true
}

// Len returns the number of stored entries, expired ones included.
func (s *Summaries) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartCleanup drops expired entries every interval until Stop.
func (s *Summaries) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					log.Printf("🧹 Dropped %d expired summaries", n)
				}
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop ends the cleanup goroutine.
func (s *Summaries) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Sweep removes expired entries and returns how many were dropped.
func (s *Summaries) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, e := range s.entries {
		if now.Sub(e.StoredAt) > s.ttl {
			s.remove(id)
			n++
		}
	}
	return n
}

// evict removes the least recently used entry.
func (s *Summaries) evict() {
	if len(s.order) == 0 {
		return
	}
	oldest := s.order[0]
	s.order = s.order[1:]
	delete(s.entries, oldest)
}

func (s *Summaries) touch(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, id)
}

func (s *Summaries) remove(id string) {
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
