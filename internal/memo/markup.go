package memo

import (
	"html"
	"regexp"
	"strings"
)

var (
	orderedRe   = regexp.MustCompile(`^\d+[.)]\s+`)
	unorderedRe = regexp.MustCompile(`^[*+-]\s+`)
	headerRe    = regexp.MustCompile(`^#{1,6}\s+`)
	quoteRe     = regexp.MustCompile(`^(?:>\s?)+`)

	aliasLinkRe = regexp.MustCompile(`\[\[[^\]|]+\|([^\]]+)\]\]`)
	pageLinkRe  = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	urlLinkRe   = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
	boldRe      = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	strikeRe    = regexp.MustCompile(`~~([^~]+)~~`)
	starEmRe    = regexp.MustCompile(`\*([^*]+)\*`)
	underEmRe   = regexp.MustCompile(`\b_([^_]+)_\b`)
)

// ToHTML converts block lines written in lightweight markup into the HTML
// subset accepted by Dex memos. List runs become <ul>/<ol>, other lines are
// joined with <br>, and inline bold, italic, strikethrough and links are
// translated. Everything else is escaped.
func ToHTML(lines []string) string {
	var b strings.Builder
	list := ""
	prevProse := false

	closeList := func() {
		if list != "" {
			b.WriteString("</" + list + ">")
			list = ""
		}
	}

	for _, raw := range lines {
		t := strings.TrimSpace(raw)
		if t == "" {
			continue
		}
		if tag, item, ok := listItem(t); ok {
			if list != tag {
				closeList()
				b.WriteString("<" + tag + ">")
				list = tag
			}
			b.WriteString("<li>" + inline(item) + "</li>")
			prevProse = false
			continue
		}
		closeList()
		if prevProse {
			b.WriteString("<br>")
		}
		t = quoteRe.ReplaceAllString(t, "")
		t = headerRe.ReplaceAllString(t, "")
		b.WriteString(inline(t))
		prevProse = true
	}
	closeList()
	return b.String()
}

func listItem(t string) (tag, item string, ok bool) {
	if loc := unorderedRe.FindStringIndex(t); loc != nil {
		return "ul", t[loc[1]:], true
	}
	if loc := orderedRe.FindStringIndex(t); loc != nil {
		return "ol", t[loc[1]:], true
	}
	return "", "", false
}

func inline(s string) string {
	s = html.EscapeString(s)
	s = aliasLinkRe.ReplaceAllString(s, "$1")
	s = pageLinkRe.ReplaceAllString(s, "$1")
	s = urlLinkRe.ReplaceAllString(s, `<a href="$2">$1</a>`)
	s = boldRe.ReplaceAllString(s, "<strong>$1$2</strong>")
	s = strikeRe.ReplaceAllString(s, "<del>$1</del>")
	s = starEmRe.ReplaceAllString(s, "<em>$1</em>")
	s = underEmRe.ReplaceAllString(s, "<em>$1</em>")
	return s
}
