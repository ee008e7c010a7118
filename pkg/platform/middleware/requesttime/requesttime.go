// Package requesttime pins one "now" per request so every history record
// written while serving it carries the same timestamp.
package requesttime

import (
	"net/http"
	"time"

	"minister/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
