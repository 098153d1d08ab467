package refs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnresolved means the reference no longer points at anything in the
// current document text. The caller decides how to classify the breakage;
// the annotation itself is never dropped.
var ErrUnresolved = errors.New("refs: reference does not resolve")

// ResolvedSpan is a successful resolution.
//
// ReAnchored is set when the stored offsets no longer matched and the span
// was recovered by searching for the stored text. Ambiguous is set when
// that text occurs more than once in the document; re-anchoring picks the
// first occurrence deterministically, which can be the wrong one — the
// flag lets callers surface that.
type ResolvedSpan struct {
	Start      int    `json:"start"`
	End        int    `json:"end"`
	ReAnchored bool   `json:"re_anchored,omitempty"`
	Ambiguous  bool   `json:"ambiguous,omitempty"`
	CellValue  string `json:"cell_value,omitempty"`
}

// Resolve verifies a reference against the current document text.
//
// Character ranges: if documentText[start:end] equals the stored text the
// reference is valid as-is. On mismatch (the document was edited upstream)
// the stored text is searched verbatim and the span re-anchors to its
// first occurrence. If the text is gone entirely the result is
// ErrUnresolved.
//
// Cells: validity is existence of (row, col) in the CSV-parsed document.
// Row/col is an ordinal identity, not a content match, so there is no
// re-anchoring for cells.
func Resolve(ref Ref, storedText, documentText string) (ResolvedSpan, error) {
	switch ref.Kind {
	case KindCell:
		return resolveCell(ref, documentText)
	case KindCharRange:
		return resolveCharRange(ref, storedText, documentText)
	}
	return ResolvedSpan{}, fmt.Errorf("refs: unknown reference kind %q", ref.Kind)
}

func resolveCharRange(ref Ref, storedText, documentText string) (ResolvedSpan, error) {
	if storedText == "" {
		return ResolvedSpan{}, fmt.Errorf("refs: stored text is required to resolve %s", ref)
	}
	ambiguous := strings.Count(documentText, storedText) > 1

	if ref.Start >= 0 && ref.Start <= ref.End && ref.End <= len(documentText) &&
		documentText[ref.Start:ref.End] == storedText {
		return ResolvedSpan{Start: ref.Start, End: ref.End, Ambiguous: ambiguous}, nil
	}

	// Best-effort textual re-anchor at the first occurrence.
	if idx := strings.Index(documentText, storedText); idx >= 0 {
		return ResolvedSpan{
			Start:      idx,
			End:        idx + len(storedText),
			ReAnchored: true,
			Ambiguous:  ambiguous,
		}, nil
	}
	return ResolvedSpan{}, fmt.Errorf("%w: %s", ErrUnresolved, ref)
}

func resolveCell(ref Ref, documentText string) (ResolvedSpan, error) {
	r := csv.NewReader(strings.NewReader(documentText))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ResolvedSpan{}, fmt.Errorf("refs: parse tabular document: %w", err)
		}
		if row == ref.Row {
			if ref.Col < len(record) {
				return ResolvedSpan{CellValue: record[ref.Col]}, nil
			}
			break
		}
		row++
	}
	return ResolvedSpan{}, fmt.Errorf("%w: %s", ErrUnresolved, ref)
}
