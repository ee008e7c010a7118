package admin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"minister/pkg/requestcontext"
)

type staticChecker map[string]bool

func (c staticChecker) IsAdmin(_ context.Context, userID string) (bool, bool, error) {
	global, ok := c[userID]
	return ok, ok && global, nil
}

func TestRequireAdmin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	checker := staticChecker{"mod": false, "owner": true}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		scope  Scope
		actor  string
		token  string
		status int
	}{
		{"token admits", ScopeGlobal, "", "s3cret", http.StatusNoContent},
		{"wrong token without actor", ScopeAdmin, "", "nope", http.StatusUnauthorized},
		{"no credentials", ScopeAdmin, "", "", http.StatusUnauthorized},
		{"regular admin on admin route", ScopeAdmin, "mod", "", http.StatusNoContent},
		{"regular admin on global route", ScopeGlobal, "mod", "", http.StatusForbidden},
		{"global admin on global route", ScopeGlobal, "owner", "", http.StatusNoContent},
		{"non admin", ScopeAdmin, "u1", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mode", nil)
			if tt.actor != "" {
				req = req.WithContext(requestcontext.WithActor(req.Context(), tt.actor, ""))
			}
			if tt.token != "" {
				req.Header.Set("X-Admin-Token", tt.token)
			}
			rec := httptest.NewRecorder()
			RequireAdmin(checker, "s3cret", tt.scope, logger)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
