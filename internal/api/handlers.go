package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/GraysonCAdams/dex-contacts/internal/apperr"
	"github.com/GraysonCAdams/dex-contacts/internal/dex"
	"github.com/GraysonCAdams/dex-contacts/internal/index"
	"github.com/GraysonCAdams/dex-contacts/internal/memo"
	"github.com/GraysonCAdams/dex-contacts/internal/noteservice"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the URL wildcard.
// Supports encoded slashes (e.g. daily%2F2026-01-01.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrNoMention):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("no contact mention on that line"))
	case errors.Is(err, apperr.ErrMentionNotFound):
		writeJSON(w, http.StatusConflict, errorBody("mention not found on that line"))
	case errors.Is(err, apperr.ErrNotLineOwner):
		writeJSON(w, http.StatusConflict, errorBody("line is synced to another contact"))
	case errors.Is(err, apperr.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, errorBody("sync already in progress"))
	case dex.IsTransient(err):
		slog.Warn(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("dex unavailable"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	}
}

// ListContacts handles GET /api/contacts.
//
//	@Summary	Search cached Dex contacts
//	@Tags		contacts
//	@Produce	json
//	@Param		q		query		string	false	"Name or company filter"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	ContactsResponse
//	@Security	BearerAuth
//	@Router		/contacts [get]
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.svc.Contacts(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, "list contacts", err)
		return
	}
	writeJSON(w, http.StatusOK, ContactsResponse{Contacts: list})
}

// RefreshContacts handles POST /api/contacts/refresh.
//
//	@Summary	Refetch the contact list from Dex
//	@Tags		contacts
//	@Success	204	"Refreshed"
//	@Security	BearerAuth
//	@Router		/contacts/refresh [post]
func (h *Handler) RefreshContacts(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RefreshContacts(r.Context()); err != nil {
		writeError(w, "refresh contacts", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VaultStatus handles GET /api/status.
//
//	@Summary	Mention statuses across the vault
//	@Tags		status
//	@Produce	json
//	@Param		contact_id	query		string	false	"Filter by contact"
//	@Param		status		query		string	false	"Filter by status"	Enums(not-synced, synced, needs-resync)
//	@Param		limit		query		int		false	"Max mentions"
//	@Success	200			{object}	noteservice.VaultStatus
//	@Security	BearerAuth
//	@Router		/status [get]
func (h *Handler) VaultStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	vs, err := h.svc.VaultStatus(r.Context(), index.MentionFilter{
		ContactID: q.Get("contact_id"),
		Status:    q.Get("status"),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, "vault status", err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// NoteStatus handles GET /api/status/*.
//
//	@Summary	Mention statuses of one note
//	@Tags		status
//	@Produce	json
//	@Param		path	path		string	true	"Note path"
//	@Success	200		{object}	NoteStatusResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/status/{path} [get]
func (h *Handler) NoteStatus(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	mentions, err := h.svc.NoteStatus(r.Context(), path)
	if err != nil {
		writeError(w, "note status", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteStatusResponse{Path: path, Mentions: mentions})
}

// Reindex handles POST /api/reindex.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reindex(r.Context()); err != nil {
		writeError(w, "reindex", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync handles POST /api/sync.
//
//	@Summary	Sync one block, or every pending mention of a note
//	@Tags		sync
//	@Accept		json
//	@Produce	json
//	@Param		body	body		SyncRequest	true	"Target"
//	@Success	200		{object}	SyncResponse
//	@Failure	404		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Failure	422		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Line != nil {
		res, err := h.svc.SyncBlock(r.Context(), req.Path, *req.Line, req.ContactID, req.Silent)
		if err != nil {
			writeError(w, "sync block", err)
			return
		}
		writeJSON(w, http.StatusOK, SyncResponse{Results: []memo.Result{res}})
		return
	}

	results, err := h.svc.SyncNote(r.Context(), req.Path, req.Silent)
	if results == nil {
		results = []memo.Result{}
	}
	resp := SyncResponse{Results: results}
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) && len(results) == 0 {
			writeError(w, "sync note", err)
			return
		}
		for _, e := range unwrapJoined(err) {
			resp.Errors = append(resp.Errors, e.Error())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// Strip handles POST /api/strip.
//
//	@Summary	Remove sync annotations from a note or the whole vault
//	@Tags		sync
//	@Accept		json
//	@Produce	json
//	@Param		body	body		StripRequest	true	"Target"
//	@Success	200		{object}	StripResponse
//	@Security	BearerAuth
//	@Router		/strip [post]
func (h *Handler) Strip(w http.ResponseWriter, r *http.Request) {
	var req StripRequest
	if !decode(w, r, &req) {
		return
	}

	switch {
	case req.DryRun:
		before, after, err := h.svc.PreviewStrip(r.Context(), req.Path)
		if err != nil {
			writeError(w, "strip preview", err)
			return
		}
		writeJSON(w, http.StatusOK, StripResponse{Notes: []noteservice.StripResult{}, Patch: noteservice.Diff(before, after)})
	case req.Path != "":
		res, err := h.svc.StripAnnotations(r.Context(), req.Path)
		if err != nil {
			writeError(w, "strip note", err)
			return
		}
		writeJSON(w, http.StatusOK, StripResponse{Notes: []noteservice.StripResult{res}})
	default:
		res, err := h.svc.StripVault(r.Context())
		if err != nil {
			writeError(w, "strip vault", err)
			return
		}
		writeJSON(w, http.StatusOK, StripResponse{Notes: res})
	}
}

// Resolve handles POST /api/resolve.
//
//	@Summary	Replace an @mention with a contact link
//	@Tags		contacts
//	@Accept		json
//	@Produce	json
//	@Param		body	body		ResolveRequest	true	"Mention"
//	@Success	200		{object}	ResolveResponse
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/resolve [post]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	line, err := h.svc.ResolveMention(r.Context(), req.Path, req.Line, req.Query, req.ContactID)
	if err != nil {
		writeError(w, "resolve mention", err)
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{Line: line})
}
