// Package models defines the domain types shared across dex-contacts.
package models

import (
	"strings"
	"time"
)

// Contact is a read-only copy of a Dex contact record.
type Contact struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Company    string    `json:"company,omitempty"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	ProfileURL string    `json:"profile_url,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// FullName joins the first and last name, skipping empty parts.
func (c Contact) FullName() string {
	return strings.TrimSpace(strings.Join([]string{c.FirstName, c.LastName}, " "))
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MentionStatus describes one contact mention block inside a note.
type MentionStatus struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	ContactID string `json:"contact_id,omitempty"`
	Display   string `json:"display"`
	MemoID    string `json:"memo_id,omitempty"`
	Hash      string `json:"hash"`
	Status    string `json:"status"`
}
