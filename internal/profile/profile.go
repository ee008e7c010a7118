// Package profile enriches subjects with display data from an external
// profile API. Lookups never block a ledger mutation: they run after the
// fact, and any failure degrades to a placeholder.
package profile

import (
	"context"
	"errors"
)

// ErrUnavailable reports that no profile could be obtained.
var ErrUnavailable = errors.New("profile unavailable")

// Profile is the display data for a subject.
type Profile struct {
	Nickname    string `json:"nickname"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// Fetcher looks up one subject's profile.
type Fetcher interface {
	FetchProfile(ctx context.Context, subjectID string) (Profile, error)
}

// Placeholder is shown when a lookup fails.
func Placeholder(fallbackName string) Profile {
	return Profile{Nickname: fallbackName, Placeholder: true}
}
