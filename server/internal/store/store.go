package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/docship/docship/pkg/types"
)

const maxEvictInterval = time.Hour

// Entry is an agent's latest run report together with the time it was received.
type Entry struct {
	Report    *types.RunReport
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory report store, keyed by agent_id.
// A background goroutine (Run) periodically evicts agents that have not
// reported within the configured TTL. A TTL of zero keeps entries forever.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces the report for rep.AgentID.
// Callers must not modify rep after calling Put.
func (s *Store) Put(rep *types.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rep.AgentID] = &Entry{
		Report:    rep,
		UpdatedAt: s.now(),
	}
}

// Get returns the Entry for the given agent ID and a boolean indicating
// whether an entry was found. The entry may be stale if TTL has elapsed.
func (s *Store) Get(agentID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[agentID]
	return e, ok
}

// Live is Get restricted to entries within the TTL.
func (s *Store) Live(agentID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[agentID]
	if !ok || !s.live(e, s.now()) {
		return nil, false
	}
	return e, true
}

// List returns all entries within the TTL, sorted by agent ID.
// Stale entries that have not yet been evicted are excluded.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e, s.now()) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Report.AgentID < out[j].Report.AgentID })
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.data {
		if !s.live(e, now) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

func (s *Store) live(e *Entry, now time.Time) bool {
	return s.ttl <= 0 || e.UpdatedAt.After(now.Add(-s.ttl))
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (between 1 second and 1 hour) so entries are evicted promptly. Run blocks
// until ctx is cancelled; with a zero TTL it only waits for ctx.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := min(max(s.ttl/2, time.Second), maxEvictInterval)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted silent agents", "count", n)
			}
		}
	}
}
