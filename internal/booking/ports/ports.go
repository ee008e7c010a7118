// Package ports declares the storage boundaries shared by the booking
// service, the archive manager, and the store implementations.
package ports

import (
	"context"

	"minister/internal/booking/models"
	"minister/internal/history"
	"minister/internal/slotgrid"
)

// Ledger is the authoritative current-state store of bookings and the
// active slot mode. It enforces per-category uniqueness of both slot and
// subject and never writes history.
type Ledger interface {
	ListByCategory(ctx context.Context, category models.Category) ([]models.Booking, error)
	ListAll(ctx context.Context) ([]models.Booking, error)
	FindBySubject(ctx context.Context, category models.Category, subjectID string) (*models.Booking, error)
	FindBySlot(ctx context.Context, category models.Category, slot string) (*models.Booking, error)

	// Reserve inserts a booking. Fails with ErrSlotTaken or ErrAlreadyBooked.
	Reserve(ctx context.Context, booking models.Booking) error
	// Move rewrites the subject's slot in one store operation and returns
	// the booking as it was before the move.
	Move(ctx context.Context, category models.Category, subjectID, newSlot string) (*models.Booking, error)
	// Cancel deletes and returns the subject's booking. Fails with ErrNotBooked.
	Cancel(ctx context.Context, category models.Category, subjectID string) (*models.Booking, error)
	// Clear deletes every booking in category matching filter.
	Clear(ctx context.Context, category models.Category, filter models.ClearFilter) ([]models.Booking, error)
	// ApplySlotChanges rewrites slots for a staged migration batch.
	ApplySlotChanges(ctx context.Context, changes []models.SlotChange) error

	Mode(ctx context.Context) (slotgrid.Mode, error)
	SetMode(ctx context.Context, mode slotgrid.Mode) error
}

// HistoryWriter appends records within a unit of work.
type HistoryWriter interface {
	Append(ctx context.Context, record *history.Record) error
	// TagArchive assigns archiveID to every record of the current era.
	TagArchive(ctx context.Context, archiveID string) (int, error)
}

// HistoryReader queries committed records newest first.
type HistoryReader interface {
	List(ctx context.Context, filter history.Filter) ([]history.Record, error)
	ListArchiveIDs(ctx context.Context) ([]string, error)
}

// Stores are the stores bound to one unit of work.
type Stores struct {
	Ledger  Ledger
	History HistoryWriter
}

// LedgerTx provides the transactional boundary for ledger mutations and
// their history records. Either everything fn wrote commits, or nothing does.
//
// Callers serialize units of work touching the same category; categories
// lists those the unit of work may mutate.
type LedgerTx interface {
	RunInTx(ctx context.Context, categories []models.Category, fn func(ctx context.Context, stores Stores) error) error
}
