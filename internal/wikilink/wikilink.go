// Package wikilink parses the inline annotation grammar embedded in
// document text.
//
// Grammar, in order of specificity:
//
//	[[canonical]]                 type inferred, canonical = display
//	[[type:canonical]]            explicit type, canonical = display
//	[[type:canonical|display]]    explicit type, explicit display
//
// Links do not nest. Scanning is non-greedy to the next "]]"; malformed
// brackets (unterminated, nested) are simply not matched, so malformed
// input degrades to plain text instead of producing garbled links.
package wikilink

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/mharlow/annex/internal/models"
)

// ParsedLink is a single entity mention found in text, with source offsets
// into the scanned string.
type ParsedLink struct {
	Type          models.EntityType
	CanonicalName string
	DisplayName   string
	StartIndex    int
	EndIndex      int
	FullMatchText string
}

var (
	phoneRe = regexp.MustCompile(`^[0-9+\s().-]+$`)
	digitRe = regexp.MustCompile(`[0-9]`)
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	isoRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slashRe = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4}$`)
	typeRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
)

// InferType applies the type-inference heuristic for links without an
// explicit type. Phone and email are checked before dates because their
// patterns can overlap with looser date heuristics.
func InferType(value string) models.EntityType {
	v := strings.TrimSpace(value)
	if phoneRe.MatchString(v) && len(digitRe.FindAllString(v, -1)) >= 7 {
		return models.TypeSelector
	}
	if emailRe.MatchString(v) {
		return models.TypeSelector
	}
	if isoRe.MatchString(v) || slashRe.MatchString(v) {
		return models.TypeDate
	}
	return models.TypeEntity
}

// Parse scans text and returns every well-formed wiki-link in order of
// appearance. Malformed spans are skipped, never partially emitted.
func Parse(text string) []ParsedLink {
	var out []ParsedLink
	i := 0
	for i+1 < len(text) {
		if text[i] != '[' || text[i+1] != '[' {
			i++
			continue
		}
		link, end, ok := scanAt(text, i)
		if !ok {
			// Unterminated or nested open: resume after this "[[" so a
			// later well-formed link is still found.
			i += 2
			continue
		}
		out = append(out, link)
		i = end
	}
	return out
}

// scanAt scans a single link starting at start, which must point at the
// first '[' of a "[[" pair. It fails on nesting, empty canonical names,
// and missing terminators.
func scanAt(text string, start int) (ParsedLink, int, bool) {
	i := start + 2
	for i < len(text) {
		if text[i] == '[' && i+1 < len(text) && text[i+1] == '[' {
			// Nested open before the close: the outer brackets are
			// malformed and are not a link.
			return ParsedLink{}, 0, false
		}
		if text[i] == ']' && i+1 < len(text) && text[i+1] == ']' {
			inner := text[start+2 : i]
			if strings.ContainsAny(inner, "\n") {
				return ParsedLink{}, 0, false
			}
			link, ok := parseInner(inner)
			if !ok {
				return ParsedLink{}, 0, false
			}
			link.StartIndex = start
			link.EndIndex = i + 2
			link.FullMatchText = text[start : i+2]
			return link, i + 2, true
		}
		i++
	}
	return ParsedLink{}, 0, false
}

// parseInner splits the bracket contents into type, canonical, and display.
func parseInner(inner string) (ParsedLink, bool) {
	body := inner
	display := ""
	if p := strings.Index(inner, "|"); p >= 0 {
		body = inner[:p]
		display = strings.TrimSpace(inner[p+1:])
	}

	typeToken := ""
	canonical := body
	if c := strings.Index(body, ":"); c >= 0 && typeRe.MatchString(body[:c]) {
		typeToken = body[:c]
		canonical = body[c+1:]
	}
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return ParsedLink{}, false
	}
	if display == "" {
		display = canonical
	}

	t := models.EntityType("")
	if typeToken == "" {
		t = InferType(canonical)
	} else {
		t = models.NormalizeType(strings.ToLower(typeToken))
	}
	return ParsedLink{Type: t, CanonicalName: canonical, DisplayName: display}, true
}

// Format renders a link back to grammar form, the inverse of Parse. The
// display segment is omitted when it equals the canonical name.
func Format(t models.EntityType, canonical, display string) string {
	var b strings.Builder
	b.WriteString("[[")
	if t != "" {
		b.WriteString(string(t))
		b.WriteString(":")
	}
	b.WriteString(canonical)
	if display != "" && display != canonical {
		b.WriteString("|")
		b.WriteString(display)
	}
	b.WriteString("]]")
	return b.String()
}

// ToPlainText strips the grammar, keeping only display text. Running it on
// its own output is a no-op (idempotent), since display text never contains
// bracket pairs.
func ToPlainText(text string) string {
	links := Parse(text)
	if len(links) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, l := range links {
		b.WriteString(text[last:l.StartIndex])
		b.WriteString(l.DisplayName)
		last = l.EndIndex
	}
	b.WriteString(text[last:])
	return b.String()
}

// ToHTML replaces each mention with a tagged span carrying the type and the
// URL-encoded canonical name. Non-link text is HTML-escaped.
func ToHTML(text string) string {
	links := Parse(text)
	var b strings.Builder
	last := 0
	for _, l := range links {
		b.WriteString(html.EscapeString(text[last:l.StartIndex]))
		b.WriteString(`<span class="wiki-link" data-type="`)
		b.WriteString(string(l.Type))
		b.WriteString(`" data-canonical="`)
		b.WriteString(url.QueryEscape(l.CanonicalName))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(l.DisplayName))
		b.WriteString(`</span>`)
		last = l.EndIndex
	}
	b.WriteString(html.EscapeString(text[last:]))
	return b.String()
}

// IsValidSingleLink reports whether s, after trimming, is exactly one
// well-formed link and nothing else.
func IsValidSingleLink(s string) bool {
	s = strings.TrimSpace(s)
	links := Parse(s)
	return len(links) == 1 && links[0].StartIndex == 0 && links[0].EndIndex == len(s)
}

// ExtractType returns the resolved type of a single-link token, or false
// if s is not a valid single link.
func ExtractType(s string) (models.EntityType, bool) {
	s = strings.TrimSpace(s)
	if !IsValidSingleLink(s) {
		return "", false
	}
	return Parse(s)[0].Type, true
}
