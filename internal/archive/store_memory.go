package archive

import (
	"context"
	"slices"
	"sync"

	"minister/pkg/platform/sentinel"
)

// InMemoryStore keeps snapshots for deployments without Redis.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snapshots: make(map[string]Snapshot)}
}

func (s *InMemoryStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Bookings = slices.Clone(snap.Bookings)
	s.snapshots[snap.ID] = snap
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	snap.Bookings = slices.Clone(snap.Bookings)
	return &snap, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap.Summary())
	}
	slices.SortFunc(out, func(a, b Summary) int {
		return b.TakenAt.Compare(a.TakenAt)
	})
	return out, nil
}
