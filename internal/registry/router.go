package registry

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the version lineage API.
func Router(store *Store) chi.Router {
	r := chi.NewRouter()

	r.Get("/versions", ListVersionsHandler(store))
	r.Post("/versions", CreateVersionHandler(store))
	r.Get("/versions/{versionId}", GetVersionHandler(store))
	r.Post("/versions/{versionId}:status", UpdateStatusHandler(store))

	return r
}

// logger returns a request-scoped logger carrying the caller's request id.
func logger(r *http.Request) *slog.Logger {
	l := slog.Default()
	if rid := r.Header.Get("X-Request-ID"); rid != "" {
		l = l.With("requestId", rid)
	}
	return l
}
