package calls

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepo keeps batches in memory. Used by tests and when no database is configured.
type MemoryRepo struct {
	mu      sync.RWMutex
	batches map[string]BatchCall
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{batches: make(map[string]BatchCall)}
}

func (r *MemoryRepo) Create(_ context.Context, b BatchCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.batches[b.ID]; exists {
		return fmt.Errorf("batch call %s already exists", b.ID)
	}
	r.batches[b.ID] = b
	return nil
}

func (r *MemoryRepo) UpdatePoll(_ context.Context, id string, u PollUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.apply(u)
	r.batches[id] = b
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (BatchCall, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return BatchCall{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryRepo) List(_ context.Context, f ListFilter) ([]BatchCall, error) {
	f = f.normalized()

	r.mu.RLock()
	out := make([]BatchCall, 0, len(r.batches))
	for _, b := range r.batches {
		if f.State != "" && b.PollState != f.State {
			continue
		}
		out = append(out, b)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset >= len(out) {
		return []BatchCall{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
