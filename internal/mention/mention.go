// Package mention locates and formats the link constructs that carry a contact
// mention inside a line of Markdown: direct links [display](url) and internal
// page links [[path|display]] / [[path]].
package mention

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/GraysonCAdams/dex-contacts/internal/models"
)

// Kind is the shape of a mention link.
type Kind int

const (
	// Direct is a [display](url) link pointing at the remote profile.
	Direct Kind = iota
	// Internal is a [[path|display]] or [[path]] page link.
	Internal
)

// Link styles accepted by FormatLink.
const (
	StyleDirect   = "direct"
	StyleInternal = "internal"
)

var (
	internalRe = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]*))?\]\]`)
	directRe   = regexp.MustCompile(`\[([^\[\]]*)\]\(([^()\s]+)\)`)
)

// Link is one link construct found on a line. Start and End are byte offsets,
// End exclusive.
type Link struct {
	Kind    Kind
	Start   int
	End     int
	Display string
	Target  string
}

// Find returns every link on line ordered by position. Direct links nested
// inside an internal link span are ignored.
func Find(line string) []Link {
	var out []Link
	for _, m := range internalRe.FindAllStringSubmatchIndex(line, -1) {
		target := strings.TrimSpace(line[m[2]:m[3]])
		display := target
		if m[4] >= 0 {
			display = strings.TrimSpace(line[m[4]:m[5]])
		}
		out = append(out, Link{Kind: Internal, Start: m[0], End: m[1], Display: display, Target: target})
	}
	for _, m := range directRe.FindAllStringSubmatchIndex(line, -1) {
		if overlaps(out, m[0], m[1]) {
			continue
		}
		out = append(out, Link{Kind: Direct, Start: m[0], End: m[1], Display: line[m[2]:m[3]], Target: line[m[4]:m[5]]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func overlaps(links []Link, start, end int) bool {
	for _, l := range links {
		if start < l.End && end > l.Start {
			return true
		}
	}
	return false
}

// ContactID returns the contact id carried by a direct link URL: its last
// non-empty path segment. Internal links carry no id and return "".
func (l Link) ContactID() string {
	if l.Kind != Direct {
		return ""
	}
	u, err := url.Parse(l.Target)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}

// PointsTo reports whether the link references the given contact, either by
// id (direct links) or by page name (internal links).
func (l Link) PointsTo(contactID, name string) bool {
	if l.Kind == Direct {
		return contactID != "" && l.ContactID() == contactID
	}
	if name == "" {
		return false
	}
	base := strings.TrimSuffix(path.Base(l.Target), ".md")
	return SameName(base, name) || SameName(l.Display, name)
}

// SameName compares two display names after NFC normalisation, ignoring case
// and surrounding whitespace.
func SameName(a, b string) bool {
	a = norm.NFC.String(strings.TrimSpace(a))
	b = norm.NFC.String(strings.TrimSpace(b))
	return a != "" && strings.EqualFold(a, b)
}

// FormatLink renders a new mention for c. style is StyleDirect or
// StyleInternal; urlBase is prefixed to the contact id when the contact has no
// profile URL of its own; folder is the page folder for internal links.
func FormatLink(c models.Contact, style, urlBase, folder string) string {
	name := c.FullName()
	if name == "" {
		name = c.ID
	}
	if style == StyleInternal {
		target := name
		if folder = strings.Trim(folder, "/"); folder != "" {
			target = folder + "/" + name
		}
		if target == name {
			return "[[" + name + "]]"
		}
		return "[[" + target + "|" + name + "]]"
	}
	profile := c.ProfileURL
	if profile == "" {
		profile = strings.TrimRight(urlBase, "/") + "/" + c.ID
	}
	return "[" + name + "](" + profile + ")"
}

// Resolve replaces the first "@query" on line with link. The match ignores
// case. It reports false and returns line unchanged when no match exists.
func Resolve(line, query, link string) (string, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return line, false
	}
	for i := 0; i < len(line); i++ {
		if line[i] != '@' {
			continue
		}
		end := i + 1 + len(query)
		if end > len(line) {
			break
		}
		if strings.EqualFold(line[i+1:end], query) {
			return line[:i] + link + line[end:], true
		}
	}
	return line, false
}

// Matcher decides which links on a line are contact mentions. A direct link
// is a mention when its URL lives under URLBase; an internal link when its
// target lies in Folder or Known reports its page name.
type Matcher struct {
	URLBase string
	Folder  string
	Known   func(name string) bool
}

// Match reports whether l is a contact mention.
func (m Matcher) Match(l Link) bool {
	switch l.Kind {
	case Direct:
		base := strings.TrimRight(m.URLBase, "/")
		return base != "" && strings.HasPrefix(l.Target, base+"/") && l.ContactID() != ""
	case Internal:
		if folder := strings.Trim(m.Folder, "/"); folder != "" && strings.HasPrefix(l.Target, folder+"/") {
			return true
		}
		if m.Known != nil {
			return m.Known(strings.TrimSuffix(path.Base(l.Target), ".md"))
		}
	}
	return false
}

// Mentions returns the contact mentions on line ordered by position.
func (m Matcher) Mentions(line string) []Link {
	var out []Link
	for _, l := range Find(line) {
		if m.Match(l) {
			out = append(out, l)
		}
	}
	return out
}

// PageName returns the display name a link refers to: the page base name
// for internal links and the link text for direct links.
func (l Link) PageName() string {
	if l.Kind == Internal {
		return strings.TrimSuffix(path.Base(l.Target), ".md")
	}
	return strings.TrimSpace(l.Display)
}
