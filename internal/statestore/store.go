// Package statestore holds the process-wide campaign lifecycle registry and
// the per-campaign execution lock that keeps batches from overlapping.
//
// The store is an in-memory, single-process structure. A multi-instance
// deployment needs a durable lease (row with a version column, or a lock
// service) so TryAcquireExecution stays a true mutex across processes.
package statestore

import (
	"sync"
	"time"

	appErrors "github.com/unclebandit/calleopard-backend/internal/errors"
	"github.com/unclebandit/calleopard-backend/internal/model"
)

type entry struct {
	state      model.CampaignStatus
	executing  bool
	lastTickAt time.Time
}

// Store maps campaign id -> {state, executing, lastTickAt}. All methods are
// safe for concurrent use; every transition is a single critical section.
type Store struct {
	mu      sync.Mutex
	entries map[int]*entry
}

func New() *Store {
	return &Store{entries: make(map[int]*entry)}
}

// GetState returns the cached state for a campaign. ok is false for a
// campaign the store has never seen, which callers must distinguish from
// any real state.
func (s *Store) GetState(id int) (model.CampaignStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return "", false
	}
	return e.state, true
}

// SetState applies a validated lifecycle transition. Setting the state a
// campaign already holds is a no-op, which makes racing control calls
// (two resumes for the same id) idempotent. An unknown id is seeded
// directly; validation against prior state only makes sense once the store
// has observed one.
func (s *Store) SetState(id int, next model.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		s.entries[id] = &entry{state: next}
		return nil
	}
	if e.state == next {
		return nil
	}
	if !e.state.CanTransitionTo(next) {
		return appErrors.NewInvalidTransition(id, e.state, next)
	}
	e.state = next
	return nil
}

// Hydrate seeds the store from a persisted campaign row without transition
// validation, but never clobbers an entry that already exists. The scheduler
// uses it after a process restart, when running campaigns exist in the
// database that this store has never seen.
func (s *Store) Hydrate(id int, state model.CampaignStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		s.entries[id] = &entry{state: state}
	}
}

// TryAcquireExecution is the mutual-exclusion primitive for batch runs.
// It succeeds only if the campaign is running and no batch currently holds
// the lock; the check and the flip happen under one lock acquisition, so
// under any interleaving exactly one caller wins until the matching release.
func (s *Store) TryAcquireExecution(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.state != model.CampaignRunning || e.executing {
		return false
	}
	e.executing = true
	return true
}

// ReleaseExecution clears the execution flag. Idempotent; releasing an
// unknown or already-released id does nothing.
func (s *Store) ReleaseExecution(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.executing = false
	e.lastTickAt = time.Now()
}

// LastTickAt reports when a batch last released the campaign's lock.
func (s *Store) LastTickAt(id int) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.lastTickAt.IsZero() {
		return time.Time{}, false
	}
	return e.lastTickAt, true
}
