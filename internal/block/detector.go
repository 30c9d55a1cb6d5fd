// Package block determines which lines of a document belong to the content
// block attached to a contact mention.
//
// A block starts at the mention's line and greedily absorbs the following
// lines that continue it: deeper-indented notes, blockquotes, and prose at the
// same indent. A blank line, a sibling list item, a header at the same or a
// lesser indent, or any other structure at the same or a lesser indent ends
// it. There is no backtracking.
package block

import (
	"regexp"
	"strings"

	"github.com/GraysonCAdams/dex-contacts/internal/annotation"
	"github.com/GraysonCAdams/dex-contacts/internal/checksum"
)

var (
	listItemRe = regexp.MustCompile(`^(?:[*+-]|\d+[.)])\s`)
	headerRe   = regexp.MustCompile(`^#{1,6}\s`)
)

// Lines gives read access to a document by line index.
type Lines interface {
	LineCount() int
	Line(i int) string
}

// Block is a detected content block. End is inclusive.
type Block struct {
	Start int
	End   int
	// Lines holds the annotation-stripped text of every line in the block.
	Lines []string
	// HasAnnotation is true when the start line carries a non-empty memo id.
	HasAnnotation bool
	ContactID     string
	MemoID        string
	StoredHash    string
}

// Text returns the block content used for hashing and memo rendering.
func (b Block) Text() string {
	return strings.TrimSpace(strings.Join(b.Lines, "\n"))
}

// Hash returns the content token of the block.
func (b Block) Hash() string {
	return checksum.Content(b.Text())
}

// lineKind is the structural class of a non-blank line.
type lineKind int

const (
	kindProse lineKind = iota
	kindListItem
	kindBlockquote
	kindHeader
)

type lineInfo struct {
	blank  bool
	indent int
	kind   lineKind
}

func classify(raw string) lineInfo {
	trimmed := strings.TrimLeft(raw, " \t")
	if strings.TrimSpace(trimmed) == "" {
		return lineInfo{blank: true}
	}
	info := lineInfo{indent: len(raw) - len(trimmed)}
	switch {
	case listItemRe.MatchString(trimmed):
		info.kind = kindListItem
	case strings.HasPrefix(trimmed, ">"):
		info.kind = kindBlockquote
	case headerRe.MatchString(trimmed):
		info.kind = kindHeader
	}
	return info
}

// continues reports whether next belongs to a block whose start line is start.
func continues(start, next lineInfo) bool {
	switch {
	case next.blank:
		return false
	case start.kind == kindListItem && next.kind == kindListItem && next.indent == start.indent:
		return false
	case next.kind == kindHeader && next.indent <= start.indent:
		return false
	case next.indent > start.indent:
		return true
	case next.kind == kindBlockquote && next.indent >= start.indent:
		return true
	case next.indent == start.indent && next.kind != kindListItem && next.kind != kindHeader:
		return true
	default:
		return false
	}
}

// Detect returns the block that starts at line start. An out-of-range start
// yields a zero-length block with End == start - 1 and no lines.
func Detect(doc Lines, start int) Block {
	total := doc.LineCount()
	if start < 0 || start >= total {
		return Block{Start: start, End: start - 1}
	}

	first := doc.Line(start)
	fields := annotation.Parse(first)
	b := Block{
		Start:         start,
		End:           start,
		Lines:         []string{annotation.Strip(first)},
		HasAnnotation: fields.MemoID != "",
		ContactID:     fields.ContactID,
		MemoID:        fields.MemoID,
		StoredHash:    fields.Hash,
	}

	head := classify(first)
	// A start line of only whitespace is treated as prose at its indent.
	head.blank = false

	for i := start + 1; i < total; i++ {
		raw := doc.Line(i)
		if !continues(head, classify(raw)) {
			break
		}
		b.Lines = append(b.Lines, annotation.Strip(raw))
		b.End = i
	}

	for len(b.Lines) > 1 && strings.TrimSpace(b.Lines[len(b.Lines)-1]) == "" {
		b.Lines = b.Lines[:len(b.Lines)-1]
	}
	return b
}

// Slice adapts a []string to Lines.
type Slice []string

// LineCount implements Lines.
func (s Slice) LineCount() int { return len(s) }

// Line implements Lines.
func (s Slice) Line(i int) string { return s[i] }

// FromText splits text on "\n" into a Slice.
func FromText(text string) Slice {
	return Slice(strings.Split(text, "\n"))
}

// StateFor returns the sync fields that apply to contactID. Only the first
// annotation on the start line counts; one owned by another contact leaves
// the mention without sync state.
func (b Block) StateFor(contactID string) (memoID, storedHash string, has bool) {
	if b.ContactID != "" && b.ContactID != contactID {
		return "", "", false
	}
	return b.MemoID, b.StoredHash, b.HasAnnotation
}
