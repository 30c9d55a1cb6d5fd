package memo

import (
	"html"
	"net/url"
	"strings"
	"time"
)

// DefaultTemplate is used when no memo template is configured.
const DefaultTemplate = "{{content}}<br><br><em>From {{link}} on {{date}}</em>"

// Vars are the values available to a memo template.
type Vars struct {
	Content string // block content, already converted to HTML
	Title   string
	Path    string
	Vault   string
	Time    time.Time
}

// Template renders memo bodies from a {{placeholder}} template.
//
// Supported placeholders: {{content}}, {{title}}, {{path}}, {{date}},
// {{time}}, {{datetime}} and {{link}}, an obsidian:// back-link to the note.
type Template struct {
	Text string
}

// Render substitutes v into the template.
func (t Template) Render(v Vars) string {
	text := t.Text
	if strings.TrimSpace(text) == "" {
		text = DefaultTemplate
	}
	r := strings.NewReplacer(
		"{{content}}", v.Content,
		"{{title}}", html.EscapeString(v.Title),
		"{{path}}", html.EscapeString(v.Path),
		"{{date}}", v.Time.Format("2006-01-02"),
		"{{time}}", v.Time.Format("15:04"),
		"{{datetime}}", v.Time.Format("2006-01-02 15:04"),
		"{{link}}", backLink(v),
	)
	return r.Replace(text)
}

func backLink(v Vars) string {
	label := v.Title
	if label == "" {
		label = v.Path
	}
	if v.Path == "" {
		return html.EscapeString(label)
	}
	q := url.Values{}
	if v.Vault != "" {
		q.Set("vault", v.Vault)
	}
	q.Set("file", strings.TrimSuffix(v.Path, ".md"))
	href := "obsidian://open?" + q.Encode()
	return `<a href="` + html.EscapeString(href) + `">` + html.EscapeString(label) + `</a>`
}
