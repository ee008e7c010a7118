package models

import (
	"fmt"

	"minister/internal/slotgrid"
	dErrors "minister/pkg/domain-errors"
)

// BookRequest asks for subject to hold slot in category.
type BookRequest struct {
	Category Category
	Subject  Subject
	Slot     string
	Actor    Actor
}

// BookResult reports a successful book or reschedule.
type BookResult struct {
	Booking      Booking `json:"booking"`
	PreviousSlot string  `json:"previous_slot,omitempty"`
}

// Rescheduled reports whether the subject moved from an earlier slot.
func (r BookResult) Rescheduled() bool { return r.PreviousSlot != "" }

// CancelResult reports a removed booking.
type CancelResult struct {
	Booking     Booking `json:"booking"`
	RemovedSlot string  `json:"removed_slot"`
}

// ClearResult reports a bulk clear.
type ClearResult struct {
	Category Category  `json:"category"`
	Removed  []Booking `json:"removed"`
	Count    int       `json:"count"`
}

// MigrationReport summarizes a slot-mode change.
type MigrationReport struct {
	Count      int           `json:"count"`
	BeforeMode slotgrid.Mode `json:"before_mode"`
	AfterMode  slotgrid.Mode `json:"after_mode"`
}

// BookedSlot pairs a slot with its holder for display.
type BookedSlot struct {
	Slot    string  `json:"slot"`
	Subject Subject `json:"subject"`
}

// ConflictError is returned when the requested slot is held by someone else.
// It unwraps to a CodeSlotConflict domain error.
type ConflictError struct {
	Category Category
	Slot     string
	Holder   Subject
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s in %s is held by %s", e.Slot, e.Category.DisplayName(), e.Holder.DisplayName())
}

// HolderName identifies the current holder for transports.
func (e *ConflictError) HolderName() string { return e.Holder.DisplayName() }

func (e *ConflictError) Unwrap() error {
	return dErrors.New(dErrors.CodeSlotConflict, e.Error())
}
