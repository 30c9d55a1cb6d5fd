// Package parser extracts frontmatter, the title and contact mentions from a
// Markdown note.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GraysonCAdams/dex-contacts/internal/mention"
)

// Frontmatter keys that mark a page as the local note of a Dex contact.
var contactKeys = []string{"dex-id", "dex_id", "dex-contact-id"}

// Occurrence is a line carrying one or more contact mentions. Line is
// zero-based and counts from the top of the file, frontmatter included.
type Occurrence struct {
	Line  int
	Links []mention.Link
}

// Result holds the output of parsing a note.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	// BodyLine is the file line on which Body starts.
	BodyLine  int
	Title     string
	ContactID string
	Mentions  []Occurrence
}

// Parse splits frontmatter from body, derives the title and collects the
// lines on which m finds mentions.
func Parse(data []byte, m mention.Matcher) (*Result, error) {
	fm, body, bodyLine := splitFrontmatter(data)

	r := &Result{
		Frontmatter: fm,
		Body:        body,
		BodyLine:    bodyLine,
		Title:       deriveTitle(fm, body),
		ContactID:   contactID(fm),
	}
	for i, line := range strings.Split(body, "\n") {
		if links := m.Mentions(line); len(links) > 0 {
			r.Mentions = append(r.Mentions, Occurrence{Line: bodyLine + i, Links: links})
		}
	}
	return r, nil
}

// Title returns the note title alone.
func Title(data []byte) string {
	fm, body, _ := splitFrontmatter(data)
	return deriveTitle(fm, body)
}

// splitFrontmatter separates YAML frontmatter (between leading --- lines)
// from the body. Without valid frontmatter the whole content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, int) {
	const delim = "---"
	if !bytes.HasPrefix(data, []byte(delim+"\n")) && !bytes.HasPrefix(data, []byte(delim+"\r\n")) {
		return nil, string(data), 0
	}

	rest := data[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), 0
	}

	yamlBlock := rest[:idx]
	after := rest[idx+1+len(delim):]
	// Drop the remainder of the closing delimiter line.
	nl := bytes.IndexByte(after, '\n')
	if nl < 0 {
		after = nil
	} else {
		after = after[nl+1:]
	}

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data), 0
	}

	bodyLine := bytes.Count(data[:len(data)-len(after)], []byte("\n"))
	return fm, string(after), bodyLine
}

func contactID(fm map[string]interface{}) string {
	for _, k := range contactKeys {
		switch id := fm[k].(type) {
		case nil:
		case string:
			return strings.TrimSpace(id)
		default:
			return fmt.Sprint(id)
		}
	}
	return ""
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise "".
func deriveTitle(fm map[string]interface{}, body string) string {
	if t, ok := fm["title"].(string); ok && t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
