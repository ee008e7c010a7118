package archive

import (
	"time"

	"minister/internal/booking/models"
	"minister/internal/slotgrid"
)

// Snapshot is the ledger as it stood when an archive was taken.
type Snapshot struct {
	ID        string           `json:"id"`
	TakenAt   time.Time        `json:"taken_at"`
	ActorID   string           `json:"actor_id"`
	ActorName string           `json:"actor_name"`
	Mode      slotgrid.Mode    `json:"mode"`
	Bookings  []models.Booking `json:"bookings"`
}

// Summary describes a snapshot without its bookings.
type Summary struct {
	ID       string    `json:"id"`
	TakenAt  time.Time `json:"taken_at"`
	ActorID  string    `json:"actor_id"`
	Bookings int       `json:"bookings"`
}

func (s Snapshot) Summary() Summary {
	return Summary{ID: s.ID, TakenAt: s.TakenAt, ActorID: s.ActorID, Bookings: len(s.Bookings)}
}

// Result reports a completed archive.
type Result struct {
	ArchiveID string `json:"archive_id"`
	Bookings  int    `json:"bookings"`
	Records   int    `json:"records"`
}
