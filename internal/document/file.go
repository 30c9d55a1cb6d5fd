package document

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/GraysonCAdams/dex-contacts/internal/parser"
	"github.com/GraysonCAdams/dex-contacts/internal/storage"
)

// File is a vault note opened for line edits. Reads come from the snapshot
// taken at Open or the last Reload; SetLine re-reads the note from the store,
// replaces the line and writes the note back atomically, so edits made in the
// meantime are kept.
type File struct {
	store storage.Provider
	path  string

	mu    sync.RWMutex
	lines []string
	title string
}

// Open loads the note at path.
func Open(store storage.Provider, path string) (*File, error) {
	f := &File{store: store, path: path}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload refreshes the snapshot from the store.
func (f *File) Reload() error {
	data, err := f.store.Read(f.path)
	if err != nil {
		return err
	}
	title := parser.Title(data)
	if title == "" {
		title = strings.TrimSuffix(path.Base(f.path), ".md")
	}
	f.mu.Lock()
	f.lines = strings.Split(string(data), "\n")
	f.title = title
	f.mu.Unlock()
	return nil
}

// ID returns the vault-relative path.
func (f *File) ID() string { return f.path }

// Path returns the vault-relative path.
func (f *File) Path() string { return f.path }

// Title returns the note title (frontmatter, first H1, or file name).
func (f *File) Title() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.title
}

// LineCount returns the number of lines in the snapshot.
func (f *File) LineCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.lines)
}

// Line returns line i of the snapshot, or "" when out of range.
func (f *File) Line(i int) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i < 0 || i >= len(f.lines) {
		return ""
	}
	return f.lines[i]
}

// Text returns the snapshot.
func (f *File) Text() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return strings.Join(f.lines, "\n")
}

// SetLine replaces line i in the stored note.
func (f *File) SetLine(i int, text string) error {
	if err := f.Reload(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.lines) {
		return fmt.Errorf("document: %s: line %d out of range (%d lines)", f.path, i, len(f.lines))
	}
	f.lines[i] = text
	return f.store.Write(f.path, []byte(strings.Join(f.lines, "\n")))
}

// Replace overwrites the whole note with text.
func (f *File) Replace(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.store.Write(f.path, []byte(text)); err != nil {
		return err
	}
	f.lines = strings.Split(text, "\n")
	return nil
}
