package session

import (
	"sync"
	"time"
)

type entry struct {
	session *Session
	runner  *Runner
}

// Registry owns the live sessions of this process.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	latch   *MemoryLatch
}

// NewRegistry returns an empty registry. A non-nil latch is released for
// every session the registry drops.
func NewRegistry(latch *MemoryLatch) *Registry {
	return &Registry{entries: make(map[string]entry), latch: latch}
}

// Add registers s and the runner driving it (runner may be nil).
func (r *Registry) Add(s *Session, runner *Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[s.ID()] = entry{session: s, runner: runner}
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.session, ok
}

// Remove stops the session's runner and forgets it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		r.teardown(e)
	}
}

// Abandon cancels a live session: no redirect and no record will follow.
func (r *Registry) Abandon(id string) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	live := s.Abandon()
	r.Remove(id)
	return live
}

// Sweep drops finished sessions and abandons the ones older than ttl.
// It returns how many sessions were removed.
func (r *Registry) Sweep(now time.Time, ttl time.Duration) int {
	r.mu.RLock()
	var stale []string
	for id, e := range r.entries {
		if e.session.finished() || now.Sub(e.session.StartedAt()) > ttl {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		if s, ok := r.Get(id); ok {
			s.Abandon()
		}
		r.Remove(id)
	}
	return len(stale)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close abandons every session and stops all runners.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.session.Abandon()
		r.teardown(e)
	}
}

func (r *Registry) teardown(e entry) {
	if e.runner != nil {
		e.runner.Stop()
	}
	if r.latch != nil {
		r.latch.Release(e.session.ID())
	}
}
