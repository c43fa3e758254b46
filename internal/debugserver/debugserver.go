// Package debugserver is an optional, off-by-default introspection HTTP
// endpoint exposing a Store's pool/folder bookkeeping state as JSON,
// built on chi the way the teacher's internal/web/router.go builds its
// account-status endpoints. It never starts unless a caller explicitly
// asks for it, and it is read-only: there is no second control path into
// the pool, keeping "no persisted state" and "no event loop" intact.
package debugserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// New builds a chi router exposing GET /status as a JSON snapshot of
// whatever snapshot returns (typically a closure over *goimap.Store's
// Snapshot method). Kept as a plain func, not an interface bound to the
// root package's concrete types, so this package never imports the root
// package — the dependency only runs the other way, from a caller that
// wires New into an http.Server alongside its *goimap.Store.
func New(snapshot func() (pool, folders any)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		p, f := snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"pool": p, "folders": f})
	})
	return r
}
