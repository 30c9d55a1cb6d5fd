package index

import (
	"time"

	"github.com/GraysonCAdams/dex-contacts/internal/contacts"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
)

// MentionIndex is the read/write surface the services depend on.
type MentionIndex interface {
	UpsertNote(n NoteRow, mentions []models.MentionStatus) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	NoteMentions(path string) ([]models.MentionStatus, error)
	ListMentions(f MentionFilter) ([]models.MentionStatus, error)
	StatusCounts() (map[string]int, error)
	ContactForPage(name string) (string, error)
	SaveContacts(list []models.Contact, fetchedAt time.Time) error
	LoadContacts() ([]models.Contact, time.Time, error)
	SearchContacts(query string, limit int) ([]models.Contact, error)
	Close() error
}

var (
	_ MentionIndex       = (*DB)(nil)
	_ contacts.Persister = (*DB)(nil)
)
