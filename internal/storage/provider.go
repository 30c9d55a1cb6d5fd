// Package storage reads and writes Markdown notes inside a vault directory.
package storage

import "github.com/GraysonCAdams/dex-contacts/internal/models"

// Provider is the vault file abstraction used by the sync layer.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the note at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the note at path.
	Write(path string, content []byte) error
}
