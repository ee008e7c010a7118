package models

import (
	"fmt"
	"slices"
	"strings"

	"minister/internal/slotgrid"
	dErrors "minister/pkg/domain-errors"
)

// Category is an independent appointment type. Slot grids and conflicts
// never cross categories.
type Category string

const (
	CategoryConstruction Category = "construction"
	CategoryResearch     Category = "research"
	CategoryTraining     Category = "training"
)

// categoryNames is the single source of truth for supported categories.
var categoryNames = map[Category]string{
	CategoryConstruction: "Construction Day",
	CategoryResearch:     "Research Day",
	CategoryTraining:     "Troops Training Day",
}

// Categories returns every supported category in a stable order.
func Categories() []Category {
	return []Category{CategoryConstruction, CategoryResearch, CategoryTraining}
}

// ParseCategory accepts either the identifier or the display name.
func ParseCategory(s string) (Category, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeValidation, "category cannot be empty")
	}
	c := Category(strings.ToLower(trimmed))
	if c.IsValid() {
		return c, nil
	}
	for cat, name := range categoryNames {
		if strings.EqualFold(name, trimmed) {
			return cat, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown category %q", s))
}

func (c Category) IsValid() bool {
	_, ok := categoryNames[c]
	return ok
}

// DisplayName returns the human-readable category name.
func (c Category) DisplayName() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

func (c Category) String() string { return string(c) }

// Subject is a requester who can hold a slot.
type Subject struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GroupID string `json:"group_id,omitempty"`
}

// DisplayName falls back to the identifier when no name is known.
func (s Subject) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// Actor is the user issuing a mutation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Booking is one reserved slot.
//
// Invariants (per category):
//   - a slot has at most one assignee
//   - an assignee has at most one slot
type Booking struct {
	Category    Category `json:"category"`
	Slot        string   `json:"slot"`
	SubjectID   string   `json:"subject_id"`
	SubjectName string   `json:"subject_name"`
	GroupID     string   `json:"group_id,omitempty"`
}

// Subject returns the booking's assignee.
func (b Booking) Subject() Subject {
	return Subject{ID: b.SubjectID, Name: b.SubjectName, GroupID: b.GroupID}
}

// SortBySlot orders bookings chronologically by slot.
func SortBySlot(bookings []Booking) {
	slices.SortFunc(bookings, func(a, b Booking) int {
		switch {
		case a.Slot == b.Slot:
			return strings.Compare(a.SubjectID, b.SubjectID)
		case slotgrid.Less(a.Slot, b.Slot):
			return -1
		default:
			return 1
		}
	})
}

// SlotIndex maps slot labels to their bookings.
func SlotIndex(bookings []Booking) map[string]Booking {
	out := make(map[string]Booking, len(bookings))
	for _, b := range bookings {
		out[b.Slot] = b
	}
	return out
}

// SlotChange is one staged rewrite produced by a mode migration.
type SlotChange struct {
	Category  Category
	SubjectID string
	OldSlot   string
	NewSlot   string
}

// ClearFilter narrows a bulk clear. The zero value clears everything.
type ClearFilter struct {
	GroupID string
}

// Matches reports whether b is selected by the filter.
func (f ClearFilter) Matches(b Booking) bool {
	return f.GroupID == "" || b.GroupID == f.GroupID
}
