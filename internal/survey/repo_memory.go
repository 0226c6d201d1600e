package survey

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepo is an in-memory repository for tests and local development.
// It stores deep copies so callers can never alias stored state.
type MemoryRepo struct {
	mu      sync.Mutex
	surveys map[string]Survey
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{surveys: map[string]Survey{}} }

func (r *MemoryRepo) Create(ctx context.Context, s Survey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.surveys[s.ID]; ok {
		return fmt.Errorf("%w: survey %s already exists", ErrConflict, s.ID)
	}
	s.Version = 1
	r.surveys[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepo) Load(ctx context.Context, id string) (Survey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.surveys[id]
	if !ok {
		return Survey{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Clone(), nil
}

func (r *MemoryRepo) Save(ctx context.Context, s Survey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.surveys[s.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, s.ID)
	}
	if cur.Version != s.Version-1 {
		return fmt.Errorf("%w: %s at version %d, got %d", ErrConflict, s.ID, cur.Version, s.Version)
	}
	r.surveys[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, f ListFilter) ([]Survey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Survey, 0, len(r.surveys))
	for _, s := range r.surveys {
		if f.Match(s) {
			out = append(out, s.Clone())
		}
	}
	return sortAndLimit(out, f), nil
}
