package wikilink

import "regexp"

// LegacyTag is a mention in the older markdown-link-shaped grammar
// [type:displayText](uuid). It is recognized for backward compatibility
// but never produced by new code.
type LegacyTag struct {
	Type          string
	DisplayText   string
	UUID          string
	StartIndex    int
	EndIndex      int
	FullMatchText string
}

// legacyRe matches [type:display](uuid) where uuid is 8-4-4-4-12 hex groups.
var legacyRe = regexp.MustCompile(
	`\[([A-Za-z][A-Za-z0-9_-]*):([^\[\]]+?)\]\(([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\)`)

// ParseLegacyTags finds all legacy inline tags in text, in order.
func ParseLegacyTags(text string) []LegacyTag {
	var out []LegacyTag
	for _, m := range legacyRe.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, LegacyTag{
			Type:          text[m[2]:m[3]],
			DisplayText:   text[m[4]:m[5]],
			UUID:          text[m[6]:m[7]],
			StartIndex:    m[0],
			EndIndex:      m[1],
			FullMatchText: text[m[0]:m[1]],
		})
	}
	return out
}
