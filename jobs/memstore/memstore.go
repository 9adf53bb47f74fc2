// Package memstore holds jobs and work items in process memory. It serves
// single-process deployments and tests.
package memstore

import (
	"context"
	"sync"

	"github.com/perclft/qcircuit/jobs"
)

// Store is a map of jobs guarded by a mutex.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]jobs.Job
}

var _ jobs.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{jobs: make(map[string]jobs.Job)}
}

func (s *Store) Create(_ context.Context, job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return jobs.ErrExists
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) Get(_ context.Context, id string) (jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return jobs.Job{}, jobs.ErrNotFound
	}
	return job, nil
}

func (s *Store) Finish(_ context.Context, id string, o jobs.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return jobs.ErrNotFound
	}
	s.jobs[id] = job.Apply(o)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len is the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
