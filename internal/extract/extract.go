// Package extract separates the real content of corpus files from their
// structural metadata.
//
// Corpus files come in three classes: plain source documents, metadata
// sidecars, and composite cards that bundle original text, user-added text,
// and headers. Extraction never fails on malformed input; it returns a
// best-effort result with typed diagnostics instead.
package extract

import (
	"regexp"
	"strings"

	"github.com/mharlow/annex/internal/models"
	"github.com/mharlow/annex/internal/wikilink"
)

// Content delimiters inside composite cards. Matched as exact lines.
const (
	OriginalStart  = "=== ORIGINAL CONTENT START ==="
	OriginalEnd    = "=== ORIGINAL CONTENT END ==="
	UserAddedStart = "=== USER ADDED START ==="
	UserAddedEnd   = "=== USER ADDED END ==="
)

// Source types recovered from filenames.
const (
	SourceCSV  = "csv"
	SourceText = "text"
)

// Severity levels for diagnostics.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Diagnostic is a structured note about something unusual met during
// extraction. Carrying these on the result keeps the never-throw contract
// inspectable instead of relying on log side effects.
type Diagnostic struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// Diagnostic codes.
const (
	CodeMissingDelimiters = "missing_delimiters"
	CodeSidecarExtraction = "sidecar_extraction"
	CodeUnknownFileType   = "unknown_file_type"
)

// CleanContent is the result of extracting a corpus file.
type CleanContent struct {
	Content          string       `json:"content"`
	UserAddedContent string       `json:"user_added_content,omitempty"`
	SourceType       string       `json:"source_type,omitempty"`
	HasMetadata      bool         `json:"has_metadata"`
	OriginalFilename string       `json:"original_filename,omitempty"`
	Diagnostics      []Diagnostic `json:"diagnostics,omitempty"`
}

var sidecarSuffixes = []string{
	".entity.txt", ".relate.txt", ".attrib.txt", ".comment.txt", ".kv.txt",
}

// Classify maps a filename onto its corpus file class by suffix.
func Classify(filename string) models.FileClass {
	name := strings.ToLower(filename)
	for _, s := range sidecarSuffixes {
		if strings.HasSuffix(name, s) {
			return models.ClassMetadataSidecar
		}
	}
	if strings.HasSuffix(name, ".card.txt") {
		return models.ClassCompositeCard
	}
	if strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".csv") {
		return models.ClassSourceDocument
	}
	return models.ClassUnknown
}

var sourceFileRe = regexp.MustCompile(`(?m)^source_file:\s*"([^"]+)"`)

// Extract pulls the clean content out of raw file bytes according to the
// file's class. Sidecars and unknown files fail closed: empty content plus
// a diagnostic, and nothing downstream may process them further.
func Extract(raw []byte, filename string) CleanContent {
	text := string(raw)
	switch Classify(filename) {
	case models.ClassMetadataSidecar:
		return CleanContent{
			HasMetadata: true,
			Diagnostics: []Diagnostic{{
				Severity: SeverityWarning,
				Code:     CodeSidecarExtraction,
				Message:  "metadata sidecar files carry no extractable content: " + filename,
			}},
		}
	case models.ClassUnknown:
		return CleanContent{
			Diagnostics: []Diagnostic{{
				Severity: SeverityWarning,
				Code:     CodeUnknownFileType,
				Message:  "unrecognized file type: " + filename,
			}},
		}
	case models.ClassSourceDocument:
		return CleanContent{
			Content:    strings.TrimSpace(text),
			SourceType: sourceTypeOf(filename),
		}
	}
	return extractCard(text)
}

// extractCard locates the paired content delimiters in a composite card.
// A card missing the ORIGINAL pair must remain viewable, so the whole raw
// text becomes the content and a warning diagnostic is attached.
func extractCard(text string) CleanContent {
	out := CleanContent{HasMetadata: true}

	if m := sourceFileRe.FindStringSubmatch(text); m != nil {
		out.OriginalFilename = m[1]
		out.SourceType = sourceTypeOf(m[1])
	}

	original, ok := between(text, OriginalStart, OriginalEnd)
	if !ok {
		out.Content = strings.TrimSpace(text)
		out.Diagnostics = append(out.Diagnostics, Diagnostic{
			Severity: SeverityWarning,
			Code:     CodeMissingDelimiters,
			Message:  "card is missing the ORIGINAL CONTENT delimiter pair; returning raw text",
		})
		return out
	}
	out.Content = original

	if user, ok := between(text, UserAddedStart, UserAddedEnd); ok {
		out.UserAddedContent = user
	}
	return out
}

// between returns the trimmed text strictly between two exact marker lines.
func between(text, startMarker, endMarker string) (string, bool) {
	lines := strings.Split(text, "\n")
	start, end := -1, -1
	for i, line := range lines {
		switch strings.TrimSpace(line) {
		case startMarker:
			if start < 0 {
				start = i
			}
		case endMarker:
			if start >= 0 && end < 0 {
				end = i
			}
		}
	}
	if start < 0 || end < 0 || end <= start {
		return "", false
	}
	return strings.TrimSpace(strings.Join(lines[start+1:end], "\n")), true
}

// sourceTypeOf infers csv/text from a filename extension.
func sourceTypeOf(filename string) string {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".csv"):
		return SourceCSV
	case strings.HasSuffix(name, ".txt"):
		return SourceText
	}
	return ""
}

var (
	uuidRe      = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	yamlLineRe  = regexp.MustCompile(`(?m)^[A-Za-z_][A-Za-z0-9_]*: `)
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)
)

// Validation check names reported by Validate.
const (
	CheckUUID      = "uuid"
	CheckYAMLLine  = "yaml_line"
	CheckTimestamp = "timestamp"
)

// Validate is the last line of defense against metadata contamination. It
// must run on every extracted content before indexing or display; a false
// result means the caller renders a visible contamination error rather
// than showing partial metadata. The returned slice names the checks that
// tripped.
func Validate(content string) (bool, []string) {
	var tripped []string
	if uuidRe.MatchString(content) {
		tripped = append(tripped, CheckUUID)
	}
	if yamlLineRe.MatchString(content) {
		tripped = append(tripped, CheckYAMLLine)
	}
	if timestampRe.MatchString(content) {
		tripped = append(tripped, CheckTimestamp)
	}
	return len(tripped) == 0, tripped
}

// StripInlineTags removes the legacy [type:text](uuid) grammar, keeping
// only the display text, in a single non-overlapping pass.
func StripInlineTags(content string) string {
	tags := wikilink.ParseLegacyTags(content)
	if len(tags) == 0 {
		return content
	}
	var b strings.Builder
	last := 0
	for _, t := range tags {
		b.WriteString(content[last:t.StartIndex])
		b.WriteString(t.DisplayText)
		last = t.EndIndex
	}
	b.WriteString(content[last:])
	return b.String()
}

// IntegrityResult reports whether card content still carries the original
// text, and which tokens differ when it does not. Diagnostic only; no
// merging or patching happens here.
type IntegrityResult struct {
	IsValid     bool     `json:"is_valid"`
	MissingText []string `json:"missing_text,omitempty"`
	ExtraText   []string `json:"extra_text,omitempty"`
}

// CompareIntegrity strips inline tags from cardContent, normalizes
// whitespace in both strings, and reports the token-level set difference
// in both directions when they differ.
func CompareIntegrity(cardContent, originalContent string) IntegrityResult {
	card := normalizeWhitespace(StripInlineTags(cardContent))
	orig := normalizeWhitespace(originalContent)
	if card == orig {
		return IntegrityResult{IsValid: true}
	}
	return IntegrityResult{
		IsValid:     false,
		MissingText: tokenDiff(orig, card),
		ExtraText:   tokenDiff(card, orig),
	}
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tokenDiff returns tokens of a that are absent from b: length >= 3 only,
// deduplicated, original order preserved.
func tokenDiff(a, b string) []string {
	present := make(map[string]struct{})
	for _, tok := range strings.Fields(b) {
		present[tok] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.Fields(a) {
		if len(tok) < 3 {
			continue
		}
		if _, ok := present[tok]; ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
