// Package masterindex aggregates files, entities, links, and snippets into
// a point-in-time index with classified broken references.
//
// A MasterIndex is immutable once built and is superseded wholesale by the
// next rebuild; there is no incremental patching. The Holder swaps
// snapshots in with a single atomic pointer update so readers never
// observe a partially built index.
package masterindex

import (
	"fmt"
	"time"

	"github.com/mharlow/annex/internal/models"
	"github.com/mharlow/annex/internal/refs"
)

// Stats are the aggregate counts of one snapshot, computed once per build.
type Stats struct {
	TotalFiles           int `json:"total_files"`
	TotalEntities        int `json:"total_entities"`
	TotalLinks           int `json:"total_links"`
	TotalSnippets        int `json:"total_snippets"`
	BrokenReferenceCount int `json:"broken_reference_count"`
}

// MasterIndex is one immutable snapshot of the annotation graph.
type MasterIndex struct {
	Version          int                      `json:"version"`
	BuiltAt          time.Time                `json:"built_at"`
	Files            []models.FileRecord      `json:"files"`
	Entities         []models.Entity          `json:"entities"`
	Links            []models.Link            `json:"links"`
	Snippets         []models.Snippet         `json:"snippets"`
	BrokenReferences []models.BrokenReference `json:"broken_references"`
	Stats            Stats                    `json:"stats"`

	entityByID map[string]models.Entity
	linksByEnt map[string][]models.Link
}

// Input is the consistent snapshot of records a build runs over. The
// caller is responsible for snapshot isolation; Build itself is a pure
// single-pass function.
type Input struct {
	Files    []models.FileRecord
	Entities []models.Entity
	Links    []models.Link
	Snippets []models.Snippet
	// Cards maps card UUIDs present in the corpus to their parsed records,
	// used both to detect files claiming a missing card and to inherit
	// snippet classification.
	Cards map[string]models.Card
	// Contents maps document/card ids to their current clean content, so
	// stored offsets can be re-validated during the build.
	Contents map[string]string
	// Referenced maps sidecar paths that some current document still
	// references; sidecars absent from it are orphaned.
	Referenced map[string]struct{}
}

// Build produces a new snapshot: it verifies link endpoints, card claims,
// and sidecar liveness, and re-validates every stored offset against the
// current content. A broken reference never blocks the rest of the build
// and is never silently dropped.
func Build(version int, in Input) *MasterIndex {
	idx := &MasterIndex{
		Version:    version,
		BuiltAt:    time.Now().UTC(),
		Files:      in.Files,
		Entities:   in.Entities,
		entityByID: make(map[string]models.Entity, len(in.Entities)),
		linksByEnt: make(map[string][]models.Link),
	}

	for _, e := range in.Entities {
		idx.entityByID[e.ID] = e
	}

	idx.Links = make([]models.Link, 0, len(in.Links))
	for _, l := range in.Links {
		if _, ok := idx.entityByID[l.SourceEntityID]; !ok {
			idx.broken(l.ID, models.ReasonMissingSourceEntity,
				fmt.Sprintf("link source entity %s does not exist", l.SourceEntityID), l.FilePath)
		}
		if _, ok := idx.entityByID[l.TargetEntityID]; !ok {
			idx.broken(l.ID, models.ReasonMissingTargetEntity,
				fmt.Sprintf("link target entity %s does not exist", l.TargetEntityID), l.FilePath)
		}
		idx.checkProvenance(l, in.Contents)
		idx.Links = append(idx.Links, l)
		idx.linksByEnt[l.SourceEntityID] = append(idx.linksByEnt[l.SourceEntityID], l)
		if l.TargetEntityID != l.SourceEntityID {
			idx.linksByEnt[l.TargetEntityID] = append(idx.linksByEnt[l.TargetEntityID], l)
		}
	}

	for _, f := range in.Files {
		if f.CardUUID != "" {
			if _, ok := in.Cards[f.CardUUID]; !ok {
				idx.broken(f.CardUUID, models.ReasonMissingCard,
					fmt.Sprintf("file claims card %s but no card record exists", f.CardUUID), f.Path)
			}
		}
		if f.Class == models.ClassMetadataSidecar {
			if _, ok := in.Referenced[f.Path]; !ok {
				idx.broken(f.Path, models.ReasonOrphanedFile,
					"metadata file references no current document", f.Path)
			}
		}
	}

	idx.Snippets = make([]models.Snippet, 0, len(in.Snippets))
	for _, s := range in.Snippets {
		idx.Snippets = append(idx.Snippets, idx.resolveSnippet(s, in))
	}

	idx.Stats = Stats{
		TotalFiles:           len(in.Files),
		TotalEntities:        len(in.Entities),
		TotalLinks:           len(idx.Links),
		TotalSnippets:        len(idx.Snippets),
		BrokenReferenceCount: len(idx.BrokenReferences),
	}
	return idx
}

// resolveSnippet re-validates a snippet's offsets against its card's
// current content, re-anchoring on drift. Classification is inherited
// from the card here, at build time, so reclassifying a card propagates
// on the next rebuild.
func (m *MasterIndex) resolveSnippet(s models.Snippet, in Input) models.Snippet {
	card, haveCard := in.Cards[s.CardID]
	if !haveCard {
		m.broken(s.ID, models.ReasonMissingCard,
			fmt.Sprintf("snippet card %s does not exist", s.CardID), "")
		return s
	}
	if s.Classification == "" {
		s.Classification = card.Headers["CLASSIFICATION"]
	}

	content, ok := in.Contents[s.CardID]
	if !ok || s.Text == "" {
		return s
	}
	span, err := refs.Resolve(refs.CharRange(s.CardID, s.Offsets.Start, s.Offsets.End), s.Text, content)
	if err != nil {
		m.broken(s.ID, models.ReasonMissingCard,
			fmt.Sprintf("snippet text no longer present in card %s", s.CardID), "")
		return s
	}
	s.Offsets = models.Span{Start: span.Start, End: span.End}
	return s
}

// checkProvenance bounds-checks a link's provenance offsets against the
// current content of its source card. Links carry no text snapshot, so
// out-of-range offsets cannot re-anchor and are reported as a broken card
// reference.
func (m *MasterIndex) checkProvenance(l models.Link, contents map[string]string) {
	p := l.Provenance
	if p.SourceCardID == "" || p.Offsets == nil {
		return
	}
	content, ok := contents[p.SourceCardID]
	if !ok {
		return // absence of the card itself is reported by the file pass
	}
	if p.Offsets.Start < 0 || p.Offsets.End > len(content) || p.Offsets.Start > p.Offsets.End {
		m.broken(l.ID, models.ReasonMissingCard,
			fmt.Sprintf("provenance offsets %d-%d exceed card %s content", p.Offsets.Start, p.Offsets.End, p.SourceCardID), l.FilePath)
	}
}

func (m *MasterIndex) broken(refID string, reason models.BrokenReason, details, path string) {
	m.BrokenReferences = append(m.BrokenReferences, models.BrokenReference{
		ReferenceID: refID,
		Reason:      reason,
		Details:     details,
		FilePath:    path,
	})
}

// Entity returns the entity with the given id.
func (m *MasterIndex) Entity(id string) (models.Entity, bool) {
	e, ok := m.entityByID[id]
	return e, ok
}

// LinksFor returns every link touching the given entity, in build order.
func (m *MasterIndex) LinksFor(entityID string) []models.Link {
	return m.linksByEnt[entityID]
}
