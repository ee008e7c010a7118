// Package permission answers who may administer bookings and which
// subjects are registered. Role resolution is configuration driven.
package permission

import (
	"context"
	"slices"
	"strings"

	"minister/internal/booking/models"
	dErrors "minister/pkg/domain-errors"
	"minister/pkg/platform/sentinel"
)

// Config lists administrators and the roster of bookable subjects.
// An empty roster leaves subject registration open.
type Config struct {
	Admins       []string
	GlobalAdmins []string
	Subjects     []models.Subject
}

// Static is a PermissionManager backed by fixed configuration.
type Static struct {
	admins   map[string]bool // user id -> global
	subjects map[string]models.Subject
}

func NewStatic(cfg Config) *Static {
	s := &Static{
		admins:   make(map[string]bool),
		subjects: make(map[string]models.Subject),
	}
	for _, id := range cfg.Admins {
		if id = strings.TrimSpace(id); id != "" {
			s.admins[id] = false
		}
	}
	for _, id := range cfg.GlobalAdmins {
		if id = strings.TrimSpace(id); id != "" {
			s.admins[id] = true
		}
	}
	for _, subj := range cfg.Subjects {
		if subj.ID != "" {
			s.subjects[subj.ID] = subj
		}
	}
	return s
}

// IsAdmin reports whether userID administers bookings and whether that
// extends to global operations such as mode changes and archives.
func (s *Static) IsAdmin(_ context.Context, userID string) (isAdmin, isGlobal bool, err error) {
	global, ok := s.admins[userID]
	return ok, ok && global, nil
}

// AdminUsers lists the subjects userID may act for within guildID.
// An empty guildID selects every group.
func (s *Static) AdminUsers(ctx context.Context, userID, guildID string) ([]models.Subject, error) {
	isAdmin, _, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin rights required")
	}
	out := make([]models.Subject, 0, len(s.subjects))
	for _, subj := range s.subjects {
		if guildID == "" || subj.GroupID == guildID {
			out = append(out, subj)
		}
	}
	slices.SortFunc(out, func(a, b models.Subject) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// HasRoster reports whether subject registration is enforced.
func (s *Static) HasRoster() bool {
	return len(s.subjects) > 0
}

// LookupSubject resolves a registered subject.
func (s *Static) LookupSubject(_ context.Context, subjectID string) (models.Subject, error) {
	subj, ok := s.subjects[subjectID]
	if !ok {
		return models.Subject{}, sentinel.ErrNotFound
	}
	return subj, nil
}
