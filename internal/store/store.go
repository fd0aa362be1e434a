// Package store implements the in-memory CandidateStore: a concurrent map
// of tracked symbols with capacity caps and state-filtered queries.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/candletrader/engine/internal/candidate"
)

const (
	DefaultWatchCap    = 100
	DefaultPositionCap = 15
	exitedRetention    = 24 * time.Hour
)

// Store is the single authoritative map of tracked Candidates. Writers
// hold the lock only long enough to mutate the map entry; readers get
// deep-enough Clone()s so they never race with a concurrent writer.
type Store struct {
	mu         sync.RWMutex
	candidates map[string]*candidate.Candidate
	watchCap   int
	positionCap int
}

// New builds an empty Store with the given capacity caps (0 uses package
// defaults).
func New(watchCap, positionCap int) *Store {
	if watchCap <= 0 {
		watchCap = DefaultWatchCap
	}
	if positionCap <= 0 {
		positionCap = DefaultPositionCap
	}
	return &Store{
		candidates:  make(map[string]*candidate.Candidate),
		watchCap:    watchCap,
		positionCap: positionCap,
	}
}

func isPosition(s candidate.Status) bool {
	return s == candidate.StatusEntered || s == candidate.StatusPendingOrder
}

func isWatching(s candidate.Status) bool {
	return s == candidate.StatusWatching || s == candidate.StatusBuyReady
}

// Add inserts a new candidate. If the watch capacity is reached, it first
// evicts the lowest-priority WATCHING/BUY_READY row; if the position
// capacity is reached, it returns an error without evicting anything.
// ENTERED/PENDING_ORDER rows are never evicted.
func (s *Store) Add(c *candidate.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.candidates[c.StockCode]; exists {
		s.candidates[c.StockCode] = c
		return nil
	}

	if isPosition(c.Status) {
		if s.countLocked(isPosition) >= s.positionCap {
			return fmt.Errorf("store: position capacity (%d) reached, rejecting %s", s.positionCap, c.StockCode)
		}
	} else if isWatching(c.Status) {
		if s.countLocked(isWatching) >= s.watchCap {
			if victim := s.lowestPriorityWatchingLocked(); victim != "" {
				delete(s.candidates, victim)
			} else {
				return fmt.Errorf("store: watch capacity (%d) reached, rejecting %s", s.watchCap, c.StockCode)
			}
		}
	}

	s.candidates[c.StockCode] = c
	return nil
}

func (s *Store) countLocked(pred func(candidate.Status) bool) int {
	n := 0
	for _, c := range s.candidates {
		if pred(c.Status) {
			n++
		}
	}
	return n
}

func (s *Store) lowestPriorityWatchingLocked() string {
	var victim string
	lowest := 0.0
	first := true
	for code, c := range s.candidates {
		if !isWatching(c.Status) {
			continue
		}
		if first || c.EntryPriority < lowest {
			lowest = c.EntryPriority
			victim = code
			first = false
		}
	}
	return victim
}

// Update atomically replaces the candidate keyed by StockCode. Returns an
// error if the code isn't tracked.
func (s *Store) Update(c *candidate.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[c.StockCode]; !ok {
		return fmt.Errorf("store: unknown candidate %s", c.StockCode)
	}
	c.UpdatedAt = time.Now()
	s.candidates[c.StockCode] = c
	return nil
}

// Remove deletes a candidate unconditionally.
func (s *Store) Remove(stockCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.candidates, stockCode)
}

// Get returns a read snapshot of a single candidate.
func (s *Store) Get(stockCode string) (*candidate.Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[stockCode]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// GetByState returns snapshots of every candidate whose status is in the
// given set.
func (s *Store) GetByState(states ...candidate.Status) []*candidate.Candidate {
	wanted := make(map[candidate.Status]bool, len(states))
	for _, st := range states {
		wanted[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*candidate.Candidate, 0)
	for _, c := range s.candidates {
		if wanted[c.Status] {
			out = append(out, c.Clone())
		}
	}
	return out
}

// All returns a snapshot of every tracked candidate.
func (s *Store) All() []*candidate.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*candidate.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		out = append(out, c.Clone())
	}
	return out
}

// Mutate applies fn to the live candidate keyed by stockCode under the
// store's write lock, giving callers exactly-once-writer semantics for a
// read-modify-write sequence without taking two round trips through
// Get/Update. fn must not retain the pointer it receives.
func (s *Store) Mutate(stockCode string, fn func(c *candidate.Candidate) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[stockCode]
	if !ok {
		return fmt.Errorf("store: unknown candidate %s", stockCode)
	}
	if err := fn(c); err != nil {
		return err
	}
	c.UpdatedAt = time.Now()
	return nil
}

// Count returns the number of tracked candidates in the given status.
func (s *Store) Count(status candidate.Status) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.candidates {
		if c.Status == status {
			n++
		}
	}
	return n
}

// PositionCount returns the number of ENTERED + PENDING_ORDER candidates,
// the figure EntryExecutor checks against the positions cap.
func (s *Store) PositionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(isPosition)
}

// CleanupOldExited removes EXITED candidates older than the retention
// window (default 24h).
func (s *Store) CleanupOldExited(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for code, c := range s.candidates {
		if c.Status == candidate.StatusExited && c.ExitTime != nil && now.Sub(*c.ExitTime) > exitedRetention {
			delete(s.candidates, code)
			removed++
		}
	}
	return removed
}
