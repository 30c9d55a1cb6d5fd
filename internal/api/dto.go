package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/GraysonCAdams/dex-contacts/internal/memo"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
	"github.com/GraysonCAdams/dex-contacts/internal/noteservice"
)

// SyncRequest asks for a sync of one block (Line set) or a whole note.
type SyncRequest struct {
	Path      string `json:"path" example:"daily/2026-01-01.md" validate:"required"`
	Line      *int   `json:"line,omitempty" example:"4"`
	ContactID string `json:"contact_id,omitempty" example:"c_123"`
	Silent    bool   `json:"silent,omitempty"`
}

// Validate implements validation.Validatable.
func (r SyncRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Line, validation.Min(0)),
	)
}

// SyncResponse lists the outcome of each block synced.
type SyncResponse struct {
	Results []memo.Result `json:"results" validate:"required"`
	Errors  []string      `json:"errors,omitempty"`
}

// StripRequest removes annotations from one note, or the vault when Path is
// empty. DryRun returns the patch without writing.
type StripRequest struct {
	Path   string `json:"path,omitempty" example:"daily/2026-01-01.md"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// Validate implements validation.Validatable.
func (r StripRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.When(r.DryRun, validation.Required.Error("is required for a dry run"))),
	)
}

// StripResponse reports removed annotations, or the preview patch.
type StripResponse struct {
	Notes []noteservice.StripResult `json:"notes"`
	Patch string                    `json:"patch,omitempty"`
}

// ResolveRequest replaces "@Query" on Line with a link to ContactID.
type ResolveRequest struct {
	Path      string `json:"path" validate:"required"`
	Line      int    `json:"line" validate:"required"`
	Query     string `json:"query" example:"Jane Doe" validate:"required"`
	ContactID string `json:"contact_id" example:"c_123" validate:"required"`
}

// Validate implements validation.Validatable.
func (r ResolveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Line, validation.Min(0)),
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.ContactID, validation.Required),
	)
}

// ResolveResponse returns the rewritten line.
type ResolveResponse struct {
	Line string `json:"line"`
}

// ContactsResponse wraps a contact listing.
type ContactsResponse struct {
	Contacts []models.Contact `json:"contacts" validate:"required"`
}

// NoteStatusResponse lists the mentions of one note.
type NoteStatusResponse struct {
	Path     string                 `json:"path"`
	Mentions []models.MentionStatus `json:"mentions" validate:"required"`
}
