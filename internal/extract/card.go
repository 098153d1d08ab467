package extract

import (
	"sort"
	"strings"

	"github.com/mharlow/annex/internal/models"
)

// Card file section markers. The file is a sequence of KEY: value header
// lines, then the three labelled sections, closed by the end marker.
const (
	sectionKeyValues = "KEYVALUE_PAIRS:"
	sectionContent   = "CONTENT:"
	sectionTags      = "TAGS:"
	cardEndMarker    = "=== END CARD ==="
)

const tagRefPrefix = "tag_ref:"

// ParseCard decodes the card file format into a Card record. Malformed
// input degrades gracefully: unrecognized lines are skipped and absent
// sections yield empty fields, never an error.
func ParseCard(raw []byte) models.Card {
	card := models.Card{
		Headers:   map[string]string{},
		KeyValues: map[string]string{},
	}

	const (
		stateHeaders = iota
		stateKeyValues
		stateContent
		stateTags
	)
	state := stateHeaders
	var content []string

	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		switch trimmed {
		case sectionKeyValues:
			state = stateKeyValues
			continue
		case sectionContent:
			state = stateContent
			continue
		case sectionTags:
			state = stateTags
			continue
		case cardEndMarker:
			state = stateTags
			continue
		}

		switch state {
		case stateHeaders:
			if k, v, ok := splitKeyValue(trimmed); ok {
				card.Headers[k] = v
				if strings.EqualFold(k, "uuid") {
					card.UUID = v
				}
			}
		case stateKeyValues:
			if k, v, ok := splitKeyValue(trimmed); ok {
				card.KeyValues[k] = v
			}
		case stateContent:
			content = append(content, line)
		case stateTags:
			if rest, ok := strings.CutPrefix(trimmed, tagRefPrefix); ok {
				if id := strings.TrimSpace(rest); id != "" {
					card.TagRefs = append(card.TagRefs, id)
				}
			}
		}
	}

	card.Content = strings.TrimSpace(strings.Join(content, "\n"))
	return card
}

// FormatCard encodes a Card back to the on-disk format, the inverse of
// ParseCard. Header and key-value ordering is stable (UUID first, the
// rest sorted) so repeated writes of the same card are byte-identical.
func FormatCard(card models.Card) []byte {
	var b strings.Builder

	if card.UUID != "" {
		b.WriteString("UUID: " + card.UUID + "\n")
	}
	for _, k := range sortedKeys(card.Headers) {
		if strings.EqualFold(k, "uuid") {
			continue
		}
		b.WriteString(k + ": " + card.Headers[k] + "\n")
	}

	b.WriteString(sectionKeyValues + "\n")
	for _, k := range sortedKeys(card.KeyValues) {
		b.WriteString(k + ": " + card.KeyValues[k] + "\n")
	}

	b.WriteString(sectionContent + "\n")
	b.WriteString(card.Content + "\n")

	b.WriteString(sectionTags + "\n")
	for _, id := range card.TagRefs {
		b.WriteString(tagRefPrefix + " " + id + "\n")
	}

	b.WriteString(cardEndMarker + "\n")
	return []byte(b.String())
}

// splitKeyValue splits a "key: value" line. Lines without the separator
// (or with an empty key) are not key-value lines.
func splitKeyValue(line string) (string, string, bool) {
	k, v, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	k = strings.TrimSpace(k)
	if k == "" || strings.Contains(k, " ") {
		return "", "", false
	}
	return k, strings.TrimSpace(v), true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
