package testutil

import (
	"net/http"

	"minister/pkg/platform/middleware/auth"
)

// WithActor sets the actor headers the auth middleware reads.
func WithActor(req *http.Request, actorID, actorName string) *http.Request {
	req.Header.Set(auth.HeaderActorID, actorID)
	if actorName != "" {
		req.Header.Set(auth.HeaderActorName, actorName)
	}
	return req
}

// WithGuild sets the guild header.
func WithGuild(req *http.Request, guildID string) *http.Request {
	req.Header.Set(auth.HeaderGuildID, guildID)
	return req
}
