package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Store keeps job state. Implementations must be safe for concurrent use;
// Update runs fn on the current state without lost updates.
type Store interface {
	Get(ctx context.Context, id string) (*Job, error)
	Put(ctx context.Context, j *Job) error
	Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error)
	Delete(ctx context.Context, id string) error
	// Expired returns terminal jobs that finished before cutoff.
	Expired(ctx context.Context, cutoff time.Time) ([]*Job, error)
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Job) error) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Expired(_ context.Context, cutoff time.Time) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Job
	for _, j := range s.jobs {
		if j.Status.Terminal() && j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].FinishedAt.Before(*out[b].FinishedAt) })
	return out, nil
}

// Len returns the number of stored jobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
