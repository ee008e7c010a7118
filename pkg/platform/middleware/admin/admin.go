package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"minister/pkg/requestcontext"
)

// Checker resolves administrator rights for a user.
type Checker interface {
	IsAdmin(ctx context.Context, userID string) (isAdmin, isGlobal bool, err error)
}

// Scope is the level of rights a route needs.
type Scope int

const (
	// ScopeAdmin needs any administrator.
	ScopeAdmin Scope = iota
	// ScopeGlobal needs a global administrator.
	ScopeGlobal
)

// RequireAdmin admits callers presenting the operator token in
// X-Admin-Token, or whose actor holds the rights scope asks for.
// An empty token disables the token path.
func RequireAdmin(checker Checker, token string, scope Scope, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			presented := r.Header.Get("X-Admin-Token")
			// Use constant-time comparison to prevent timing attacks
			if token != "" && presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			actorID := requestcontext.ActorID(ctx)
			if actorID == "" || checker == nil {
				logger.WarnContext(ctx, "admin route without credentials",
					"request_id", requestID,
				)
				writeJSON(w, http.StatusUnauthorized, `{"error":"unauthorized","error_description":"admin credentials required"}`)
				return
			}

			isAdmin, isGlobal, err := checker.IsAdmin(ctx, actorID)
			if err != nil {
				logger.ErrorContext(ctx, "admin check failed",
					"actor_id", actorID,
					"error", err,
					"request_id", requestID,
				)
				writeJSON(w, http.StatusInternalServerError, `{"error":"internal_error"}`)
				return
			}
			if !isAdmin || (scope == ScopeGlobal && !isGlobal) {
				logger.WarnContext(ctx, "admin rights denied",
					"actor_id", actorID,
					"global_required", scope == ScopeGlobal,
					"request_id", requestID,
				)
				writeJSON(w, http.StatusForbidden, `{"error":"forbidden","error_description":"insufficient admin rights"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
