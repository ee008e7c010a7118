package history

import (
	"time"
)

// Action names a mutating event.
type Action string

const (
	ActionAdd        Action = "add"
	ActionReschedule Action = "reschedule"
	ActionRemove     Action = "remove"
	ActionClearAll   Action = "clear_all"
	ActionModeChange Action = "mode_change"
	ActionArchive    Action = "archive"
)

// Record is one immutable history entry. Only ArchiveID may be assigned
// after the fact, when an archive closes the current era.
type Record struct {
	ID          int64             `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	ActorID     string            `json:"actor_id"`
	ActorName   string            `json:"actor_name"`
	Action      Action            `json:"action"`
	Category    string            `json:"category,omitempty"`
	SubjectID   string            `json:"subject_id,omitempty"`
	SubjectName string            `json:"subject_name,omitempty"`
	OldSlot     string            `json:"old_slot,omitempty"`
	NewSlot     string            `json:"new_slot,omitempty"`
	GroupName   string            `json:"group_name,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	ArchiveID   string            `json:"archive_id,omitempty"`
}

// Filter selects records. An empty ArchiveID selects the current era.
type Filter struct {
	Category  string
	ActorID   string
	ArchiveID string
	Limit     int
}

// Matches reports whether r is selected by f, ignoring Limit.
func (f Filter) Matches(r Record) bool {
	if r.ArchiveID != f.ArchiveID {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.ActorID != "" && r.ActorID != f.ActorID {
		return false
	}
	return true
}
