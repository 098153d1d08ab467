// Package refs implements the textual addressing scheme that binds
// annotations to locations in document content.
//
// Two reference shapes exist, exactly one per reference:
//
//	<documentID>@<start>-<end>    character range, start <= end
//	<documentID>[<row>,<col>]     tabular cell, non-negative ordinals
package refs

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind distinguishes the two addressing modes.
type Kind string

// Reference kinds.
const (
	KindCharRange Kind = "char_range"
	KindCell      Kind = "cell"
)

// Ref is a parsed reference string.
type Ref struct {
	DocumentID string `json:"document_id"`
	Kind       Kind   `json:"kind"`
	Start      int    `json:"start,omitempty"`
	End        int    `json:"end,omitempty"`
	Row        int    `json:"row,omitempty"`
	Col        int    `json:"col,omitempty"`
}

var (
	charRangeRe = regexp.MustCompile(`^(.+)@(\d+)-(\d+)$`)
	cellRe      = regexp.MustCompile(`^(.+)\[(\d+),(\d+)\]$`)
)

// Parse decodes a reference string. The cell pattern is tried first since
// a document id may itself contain '@' but the bracket suffix is
// unambiguous.
func Parse(s string) (Ref, error) {
	if m := cellRe.FindStringSubmatch(s); m != nil {
		row, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		return Ref{DocumentID: m[1], Kind: KindCell, Row: row, Col: col}, nil
	}
	if m := charRangeRe.FindStringSubmatch(s); m != nil {
		start, _ := strconv.Atoi(m[2])
		end, _ := strconv.Atoi(m[3])
		if start > end {
			return Ref{}, fmt.Errorf("refs: start %d exceeds end %d in %q", start, end, s)
		}
		return Ref{DocumentID: m[1], Kind: KindCharRange, Start: start, End: end}, nil
	}
	return Ref{}, fmt.Errorf("refs: unrecognized reference %q", s)
}

// String encodes the reference back to its canonical form, the inverse
// of Parse.
func (r Ref) String() string {
	if r.Kind == KindCell {
		return fmt.Sprintf("%s[%d,%d]", r.DocumentID, r.Row, r.Col)
	}
	return fmt.Sprintf("%s@%d-%d", r.DocumentID, r.Start, r.End)
}

// CharRange builds a character-range reference.
func CharRange(documentID string, start, end int) Ref {
	return Ref{DocumentID: documentID, Kind: KindCharRange, Start: start, End: end}
}

// Cell builds a tabular cell reference.
func Cell(documentID string, row, col int) Ref {
	return Ref{DocumentID: documentID, Kind: KindCell, Row: row, Col: col}
}
