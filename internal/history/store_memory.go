package history

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// InMemoryStore keeps records in append order. Writes made inside a unit
// of work go through a Buffer and become visible only on Commit.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
	lastTS  map[string]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{lastTS: make(map[string]time.Time)}
}

// Append commits a single record immediately.
func (s *InMemoryStore) Append(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(record)
	return nil
}

// TagArchive closes the current era immediately.
func (s *InMemoryStore) TagArchive(_ context.Context, archiveID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tagLocked(archiveID), nil
}

// List returns matching records newest first.
func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if !filter.Matches(r) {
			continue
		}
		r.Extra = maps.Clone(r.Extra)
		out = append(out, r)
	}
	SortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListArchiveIDs returns archive identifiers, most recently archived first.
func (s *InMemoryStore) ListArchiveIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	for i := len(s.records) - 1; i >= 0; i-- {
		id := s.records[i].ArchiveID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// Begin opens a write buffer bound to this store.
func (s *InMemoryStore) Begin() *Buffer {
	return &Buffer{store: s}
}

// Commit applies the buffered writes in the order they were made.
func (s *InMemoryStore) Commit(b *Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range b.ops {
		if op.record != nil {
			s.appendLocked(op.record)
			continue
		}
		s.tagLocked(op.archiveID)
	}
	b.ops = nil
}

func (s *InMemoryStore) appendLocked(record *Record) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	// Timestamps never run backwards within a category.
	if last, ok := s.lastTS[record.Category]; ok && record.Timestamp.Before(last) {
		record.Timestamp = last
	}
	s.lastTS[record.Category] = record.Timestamp
	s.nextID++
	record.ID = s.nextID
	stored := *record
	stored.Extra = maps.Clone(record.Extra)
	s.records = append(s.records, stored)
}

func (s *InMemoryStore) tagLocked(archiveID string) int {
	n := 0
	for i := range s.records {
		if s.records[i].ArchiveID == "" {
			s.records[i].ArchiveID = archiveID
			n++
		}
	}
	return n
}

func (s *InMemoryStore) currentEraCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if r.ArchiveID == "" {
			n++
		}
	}
	return n
}

type bufferedOp struct {
	record    *Record
	archiveID string
}

// Buffer collects history writes for one unit of work.
type Buffer struct {
	store *InMemoryStore
	ops   []bufferedOp
}

func (b *Buffer) Append(_ context.Context, record *Record) error {
	b.ops = append(b.ops, bufferedOp{record: record})
	return nil
}

// TagArchive reports how many records the tag will cover once committed.
func (b *Buffer) TagArchive(_ context.Context, archiveID string) (int, error) {
	n := b.store.currentEraCount()
	for _, op := range b.ops {
		switch {
		case op.record != nil:
			n++
		default:
			n = 0
		}
	}
	b.ops = append(b.ops, bufferedOp{archiveID: archiveID})
	return n, nil
}

func (b *Buffer) pending() int { return len(b.ops) }

// SortNewestFirst orders records by timestamp then id, descending.
func SortNewestFirst(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
}
