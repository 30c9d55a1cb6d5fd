package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GraysonCAdams/dex-contacts/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/contacts", h.ListContacts)
	r.Post("/contacts/refresh", h.RefreshContacts)

	r.Get("/status", h.VaultStatus)
	r.Get("/status/*", h.NoteStatus)
	r.Post("/reindex", h.Reindex)

	r.Post("/sync", h.Sync)
	r.Post("/strip", h.Strip)
	r.Post("/resolve", h.Resolve)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
