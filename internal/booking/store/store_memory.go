package store

import (
	"context"
	"maps"
	"sync"

	"minister/internal/booking/models"
	"minister/internal/slotgrid"
)

// InMemory is a map-backed ledger. Each method is atomic on its own;
// multi-step units of work go through MemoryTx.
type InMemory struct {
	mu       sync.RWMutex
	subjects map[models.Category]map[string]models.Booking // subject id -> booking
	slots    map[models.Category]map[string]string         // slot -> subject id
	mode     slotgrid.Mode
}

// NewInMemory creates an empty ledger in the given mode.
func NewInMemory(mode slotgrid.Mode) *InMemory {
	return &InMemory{
		subjects: make(map[models.Category]map[string]models.Booking),
		slots:    make(map[models.Category]map[string]string),
		mode:     mode,
	}
}

func (s *InMemory) ListByCategory(_ context.Context, category models.Category) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Booking, 0, len(s.subjects[category]))
	for _, b := range s.subjects[category] {
		out = append(out, b)
	}
	models.SortBySlot(out)
	return out, nil
}

func (s *InMemory) ListAll(ctx context.Context) ([]models.Booking, error) {
	var out []models.Booking
	for _, cat := range models.Categories() {
		bookings, _ := s.ListByCategory(ctx, cat)
		out = append(out, bookings...)
	}
	return out, nil
}

func (s *InMemory) FindBySubject(_ context.Context, category models.Category, subjectID string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.subjects[category][subjectID]
	if !ok {
		return nil, ErrNotBooked
	}
	return &b, nil
}

func (s *InMemory) FindBySlot(_ context.Context, category models.Category, slot string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subjectID, ok := s.slots[category][slot]
	if !ok {
		return nil, ErrNotBooked
	}
	b := s.subjects[category][subjectID]
	return &b, nil
}

func (s *InMemory) Reserve(_ context.Context, booking models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder, ok := s.slots[booking.Category][booking.Slot]; ok && holder != booking.SubjectID {
		return ErrSlotTaken
	}
	if _, ok := s.subjects[booking.Category][booking.SubjectID]; ok {
		return ErrAlreadyBooked
	}
	s.put(booking)
	return nil
}

func (s *InMemory) Move(_ context.Context, category models.Category, subjectID, newSlot string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.subjects[category][subjectID]
	if !ok {
		return nil, ErrNotBooked
	}
	if holder, ok := s.slots[category][newSlot]; ok && holder != subjectID {
		return nil, ErrSlotTaken
	}
	delete(s.slots[category], current.Slot)
	moved := current
	moved.Slot = newSlot
	s.put(moved)
	return &current, nil
}

func (s *InMemory) Cancel(_ context.Context, category models.Category, subjectID string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.subjects[category][subjectID]
	if !ok {
		return nil, ErrNotBooked
	}
	delete(s.subjects[category], subjectID)
	delete(s.slots[category], b.Slot)
	return &b, nil
}

func (s *InMemory) Clear(_ context.Context, category models.Category, filter models.ClearFilter) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []models.Booking
	for subjectID, b := range s.subjects[category] {
		if !filter.Matches(b) {
			continue
		}
		delete(s.subjects[category], subjectID)
		delete(s.slots[category], b.Slot)
		removed = append(removed, b)
	}
	models.SortBySlot(removed)
	return removed, nil
}

// ApplySlotChanges validates the whole batch before writing any of it.
func (s *InMemory) ApplySlotChanges(_ context.Context, changes []models.SlotChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[models.Category]map[string]string)
	moving := make(map[models.Category]map[string]bool)
	for _, c := range changes {
		b, ok := s.subjects[c.Category][c.SubjectID]
		if !ok || b.Slot != c.OldSlot {
			return ErrStaleChange
		}
		if moving[c.Category] == nil {
			moving[c.Category] = make(map[string]bool)
			next[c.Category] = make(map[string]string)
		}
		moving[c.Category][c.SubjectID] = true
	}
	for cat, bySubject := range s.subjects {
		if next[cat] == nil {
			continue
		}
		for subjectID, b := range bySubject {
			if !moving[cat][subjectID] {
				next[cat][b.Slot] = subjectID
			}
		}
	}
	for _, c := range changes {
		if holder, ok := next[c.Category][c.NewSlot]; ok && holder != c.SubjectID {
			return ErrSlotTaken
		}
		next[c.Category][c.NewSlot] = c.SubjectID
	}

	for _, c := range changes {
		b := s.subjects[c.Category][c.SubjectID]
		b.Slot = c.NewSlot
		s.subjects[c.Category][c.SubjectID] = b
	}
	for cat, slots := range next {
		s.slots[cat] = slots
	}
	return nil
}

func (s *InMemory) Mode(_ context.Context) (slotgrid.Mode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, nil
}

func (s *InMemory) SetMode(_ context.Context, mode slotgrid.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	return nil
}

// put writes b into both indexes. Callers hold mu.
func (s *InMemory) put(b models.Booking) {
	if s.subjects[b.Category] == nil {
		s.subjects[b.Category] = make(map[string]models.Booking)
		s.slots[b.Category] = make(map[string]string)
	}
	s.subjects[b.Category][b.SubjectID] = b
	s.slots[b.Category][b.Slot] = b.SubjectID
}

type checkpoint struct {
	subjects map[models.Category]map[string]models.Booking
	slots    map[models.Category]map[string]string
	mode     slotgrid.Mode
}

// checkpoint copies the state of the given categories and the mode.
func (s *InMemory) checkpoint(categories []models.Category) checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := checkpoint{
		subjects: make(map[models.Category]map[string]models.Booking, len(categories)),
		slots:    make(map[models.Category]map[string]string, len(categories)),
		mode:     s.mode,
	}
	for _, cat := range categories {
		cp.subjects[cat] = maps.Clone(s.subjects[cat])
		cp.slots[cat] = maps.Clone(s.slots[cat])
	}
	return cp
}

// restore puts back the categories captured by cp.
func (s *InMemory) restore(cp checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cat := range cp.subjects {
		s.subjects[cat] = cp.subjects[cat]
		s.slots[cat] = cp.slots[cat]
	}
	s.mode = cp.mode
}
