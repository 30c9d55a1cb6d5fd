// Package annotation reads and writes the inline sync marker attached to a
// contact mention:
//
//	%%dex:contact-id=<id>,memo-id=<id>,hash=<token>%%
//
// Every field is optional when reading. Fields are always written in the
// order above, and empty fields are omitted.
package annotation

import (
	"regexp"
	"strings"

	"github.com/GraysonCAdams/dex-contacts/internal/apperr"
	"github.com/GraysonCAdams/dex-contacts/internal/mention"
)

const (
	prefix = "%%dex:"
	suffix = "%%"
)

var (
	// markerRe matches any annotation regardless of its fields, together with
	// the blanks directly in front of it.
	markerRe = regexp.MustCompile(`[ \t]*%%dex:[^%\n]*%%`)

	// Fields are matched independently of their order and of unknown siblings.
	contactIDRe = regexp.MustCompile(`(?:^|,)\s*contact-id=([^,%]*)`)
	memoIDRe    = regexp.MustCompile(`(?:^|,)\s*memo-id=([^,%]*)`)
	hashRe      = regexp.MustCompile(`(?:^|,)\s*hash=([^,%]*)`)
)

// Fields are the values carried by one annotation.
type Fields struct {
	ContactID string
	MemoID    string
	Hash      string
}

// Located is an annotation found on a line. Start and End delimit the
// marker itself, excluding any leading blanks.
type Located struct {
	Fields
	Start int
	End   int
}

// Target identifies the mention whose annotation is written: the contact id
// and, for internal page links, the contact's display name.
type Target struct {
	ContactID string
	Name      string
}

// Format serializes f into an annotation marker.
func Format(f Fields) string {
	parts := make([]string, 0, 3)
	if f.ContactID != "" {
		parts = append(parts, "contact-id="+f.ContactID)
	}
	if f.MemoID != "" {
		parts = append(parts, "memo-id="+f.MemoID)
	}
	if f.Hash != "" {
		parts = append(parts, "hash="+f.Hash)
	}
	return prefix + strings.Join(parts, ",") + suffix
}

func parseFields(body string) Fields {
	return Fields{
		ContactID: field(contactIDRe, body),
		MemoID:    field(memoIDRe, body),
		Hash:      field(hashRe, body),
	}
}

func field(re *regexp.Regexp, body string) string {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseAll returns every annotation on line in order of appearance.
func ParseAll(line string) []Located {
	var out []Located
	for _, m := range markerRe.FindAllStringIndex(line, -1) {
		raw := line[m[0]:m[1]]
		lead := len(raw) - len(strings.TrimLeft(raw, " \t"))
		start := m[0] + lead
		body := line[start+len(prefix) : m[1]-len(suffix)]
		out = append(out, Located{Fields: parseFields(body), Start: start, End: m[1]})
	}
	return out
}

// Parse returns the fields of the first annotation on line. A line without an
// annotation yields zero Fields.
func Parse(line string) Fields {
	all := ParseAll(line)
	if len(all) == 0 {
		return Fields{}
	}
	return all[0].Fields
}

// ForContact returns the fields of the annotation owned by contactID.
func ForContact(line, contactID string) (Fields, bool) {
	for _, a := range ParseAll(line) {
		if a.ContactID == contactID {
			return a.Fields, true
		}
	}
	return Fields{}, false
}

// Strip removes every annotation from line.
func Strip(line string) string {
	return markerRe.ReplaceAllString(line, "")
}

// StripAll removes every annotation from a multi-line text.
func StripAll(text string) string {
	return markerRe.ReplaceAllString(text, "")
}

// Count returns the number of annotations in text.
func Count(text string) int {
	return len(markerRe.FindAllStringIndex(text, -1))
}

// Write sets the annotation of the target mention on line to
// (target.ContactID, memoID, hash). Other annotations and surrounding text are
// left untouched. When the mention cannot be located the line is returned
// unchanged together with apperr.ErrMentionNotFound.
func Write(line string, target Target, memoID, hash string) (string, error) {
	marker := Format(Fields{ContactID: target.ContactID, MemoID: memoID, Hash: hash})
	anns := ParseAll(line)

	if target.ContactID != "" {
		for _, a := range anns {
			if a.ContactID == target.ContactID {
				return line[:a.Start] + marker + line[a.End:], nil
			}
		}
	}

	for _, l := range mention.Find(line) {
		if !l.PointsTo(target.ContactID, target.Name) {
			continue
		}
		if a, ok := following(anns, line, l.End); ok {
			if a.ContactID != "" && a.ContactID != target.ContactID {
				continue
			}
			return line[:l.End] + marker + line[a.End:], nil
		}
		rest := strings.TrimLeft(line[l.End:], " \t")
		if rest != "" {
			rest = " " + rest
		}
		return line[:l.End] + marker + rest, nil
	}

	return line, apperr.ErrMentionNotFound
}

// following returns the annotation that directly follows offset, allowing
// only blanks in between.
func following(anns []Located, line string, offset int) (Located, bool) {
	for _, a := range anns {
		if a.Start < offset {
			continue
		}
		if strings.TrimLeft(line[offset:a.Start], " \t") == "" {
			return a, true
		}
		return Located{}, false
	}
	return Located{}, false
}

// After returns the annotation placed directly after the link ending at
// offset, the spot Write uses when it inserts one.
func After(line string, offset int) (Fields, bool) {
	if offset < 0 || offset > len(line) {
		return Fields{}, false
	}
	a, ok := following(ParseAll(line), line, offset)
	return a.Fields, ok
}
