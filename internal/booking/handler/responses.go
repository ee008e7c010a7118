package handler

import (
	"minister/internal/archive"
	"minister/internal/booking/models"
	"minister/internal/history"
	"minister/internal/profile"
	"minister/internal/slotgrid"
)

// AvailableResponse lists free slots of one category.
type AvailableResponse struct {
	Category    models.Category `json:"category"`
	DisplayName string          `json:"display_name"`
	Mode        slotgrid.Mode   `json:"mode"`
	Slots       []string        `json:"slots"`
}

// BookedResponse lists held slots of one category.
type BookedResponse struct {
	Category    models.Category      `json:"category"`
	DisplayName string               `json:"display_name"`
	Slots       []BookedSlotResponse `json:"slots"`
}

type BookedSlotResponse struct {
	Slot    string           `json:"slot"`
	Subject models.Subject   `json:"subject"`
	Profile *profile.Profile `json:"profile,omitempty"`
}

// BookResponse reports a booking or a reschedule.
type BookResponse struct {
	Category     models.Category `json:"category"`
	Slot         string          `json:"slot"`
	Subject      models.Subject  `json:"subject"`
	PreviousSlot string          `json:"previous_slot,omitempty"`
	Rescheduled  bool            `json:"rescheduled"`
}

type CancelResponse struct {
	Category    models.Category `json:"category"`
	RemovedSlot string          `json:"removed_slot"`
	Subject     models.Subject  `json:"subject"`
}

type ClearResponse struct {
	Category models.Category `json:"category"`
	Count    int             `json:"count"`
}

type ModeResponse struct {
	Mode  slotgrid.Mode `json:"mode"`
	Slots int           `json:"slots"`
}

type HistoryResponse struct {
	Records []history.Record `json:"records"`
}

type ArchiveEraResponse struct {
	ArchiveIDs []string `json:"archive_ids"`
}

type ArchiveListResponse struct {
	Archives []archive.Summary `json:"archives"`
}

type SubjectsResponse struct {
	Subjects []models.Subject `json:"subjects"`
}

func fromBookResult(r *models.BookResult) BookResponse {
	return BookResponse{
		Category:     r.Booking.Category,
		Slot:         r.Booking.Slot,
		Subject:      r.Booking.Subject(),
		PreviousSlot: r.PreviousSlot,
		Rescheduled:  r.Rescheduled(),
	}
}

func fromBooked(category models.Category, slots []models.BookedSlot, profiles map[string]profile.Profile) BookedResponse {
	out := BookedResponse{
		Category:    category,
		DisplayName: category.DisplayName(),
		Slots:       make([]BookedSlotResponse, 0, len(slots)),
	}
	for _, s := range slots {
		entry := BookedSlotResponse{Slot: s.Slot, Subject: s.Subject}
		if p, ok := profiles[s.Subject.ID]; ok {
			entry.Profile = &p
		}
		out.Slots = append(out.Slots, entry)
	}
	return out
}
