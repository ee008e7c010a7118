// Package auth identifies the acting user. Identity is asserted by the
// fronting platform through headers; this service does not authenticate.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"minister/pkg/requestcontext"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorName = "X-Actor-Name"
	HeaderGuildID   = "X-Guild-ID"
)

// Identify copies the actor headers into the request context.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get(HeaderActorID)); id != "" {
			name := strings.TrimSpace(r.Header.Get(HeaderActorName))
			ctx = requestcontext.WithActor(ctx, id, name)
		}
		if guild := strings.TrimSpace(r.Header.Get(HeaderGuildID)); guild != "" {
			ctx = requestcontext.WithGuildID(ctx, guild)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireActor rejects requests that carry no actor identity.
func RequireActor(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.ActorID(ctx) == "" {
				logger.WarnContext(ctx, "request without actor identity",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"X-Actor-ID header required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
