// Package store provides the in-memory job and batch stores owned by the
// orchestrators. Stores are explicit injected objects, never module-level
// globals, so independent orchestrators can coexist in one process.
package store

import (
	"sync"

	"github.com/infogenhq/infogen-engine/internal/domain"
)

// JobStore is a keyed in-memory job collection with insertion-order listing.
// All state transitions go through TrySetState, an allowed-state
// compare-and-swap: a late phase callback can never overwrite a terminal
// state written in the meantime.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.Job
	order []string
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*domain.Job),
	}
}

// Put stores a new job record. Overwriting an existing id is a programming
// error and is ignored.
func (s *JobStore) Put(job *domain.Job) {
	if job == nil || job.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return
	}
	stored := *job
	s.jobs[job.ID] = &stored
	s.order = append(s.order, job.ID)
}

// Get returns a snapshot of the job, or ErrNotFound.
func (s *JobStore) Get(id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return *job, nil
}

// TrySetState transitions the job to next only if its current state is one
// of allowed, applying mutate to the record inside the same critical
// section. Returns false without touching the record when the
// compare-and-swap misses.
func (s *JobStore) TrySetState(id string, allowed []domain.JobState, next domain.JobState, mutate func(*domain.Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if job.State == state {
			job.State = next
			if mutate != nil {
				mutate(job)
			}
			return true
		}
	}
	return false
}

// ListFilter narrows List results. Nil fields match everything.
type ListFilter struct {
	State *domain.JobState
}

// List returns a stable insertion-ordered page of job snapshots plus the
// total match count.
func (s *JobStore) List(filter ListFilter, offset, limit int) ([]domain.Job, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Job, 0, len(s.order))
	for _, id := range s.order {
		job := s.jobs[id]
		if filter.State != nil && job.State != *filter.State {
			continue
		}
		matched = append(matched, *job)
	}

	total := len(matched)
	if offset >= total {
		return []domain.Job{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total
}

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
