// Package document provides the line-addressable editor handles the memo
// syncer works on: an in-memory Buffer and a File backed by the vault store.
package document

import (
	"fmt"
	"strings"
	"sync"
)

// Buffer is an in-memory document. It is safe for concurrent use.
type Buffer struct {
	id    string
	title string

	mu    sync.RWMutex
	lines []string
}

// NewBuffer creates a Buffer named id holding text.
func NewBuffer(id, text string) *Buffer {
	return &Buffer{id: id, title: strings.TrimSuffix(id, ".md"), lines: strings.Split(text, "\n")}
}

// ID returns the buffer name.
func (b *Buffer) ID() string { return b.id }

// Title returns the buffer name without extension.
func (b *Buffer) Title() string { return b.title }

// Path returns the buffer name.
func (b *Buffer) Path() string { return b.id }

// LineCount returns the number of lines.
func (b *Buffer) LineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Line returns line i, or "" when i is out of range.
func (b *Buffer) Line(i int) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.lines) {
		return ""
	}
	return b.lines[i]
}

// SetLine replaces line i.
func (b *Buffer) SetLine(i int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.lines) {
		return fmt.Errorf("document: line %d out of range (%d lines)", i, len(b.lines))
	}
	b.lines[i] = text
	return nil
}

// Text returns the full document.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return strings.Join(b.lines, "\n")
}
