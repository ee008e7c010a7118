package handler

import (
	"strings"

	"minister/internal/slotgrid"
	dErrors "minister/pkg/domain-errors"
)

// BookRequest is the body of PUT /categories/{category}/bookings/{subjectID}.
type BookRequest struct {
	Slot        string `json:"slot"`
	SubjectName string `json:"subject_name"`
	GroupID     string `json:"group_id"`
}

// Validate trims the request and checks the slot label is well formed.
// Grid membership depends on the active mode and is checked by the service.
func (r *BookRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Slot = strings.TrimSpace(r.Slot)
	r.SubjectName = strings.TrimSpace(r.SubjectName)
	r.GroupID = strings.TrimSpace(r.GroupID)
	if r.Slot == "" {
		return dErrors.New(dErrors.CodeValidation, "slot is required")
	}
	if len(r.SubjectName) > 100 {
		return dErrors.New(dErrors.CodeValidation, "subject_name must be at most 100 characters")
	}
	if _, err := slotgrid.Parse(r.Slot); err != nil {
		return err
	}
	return nil
}

// ChangeModeRequest is the body of PUT /mode.
type ChangeModeRequest struct {
	Mode string `json:"mode"`

	parsedMode slotgrid.Mode
}

func (r *ChangeModeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	mode, err := slotgrid.ParseMode(r.Mode)
	if err != nil {
		return err
	}
	r.parsedMode = mode
	return nil
}

// ParsedMode returns the validated target mode.
func (r *ChangeModeRequest) ParsedMode() slotgrid.Mode {
	return r.parsedMode
}
