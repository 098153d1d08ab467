package index

import (
	"log/slog"
	"strings"

	"github.com/mharlow/annex/internal/masterindex"
	"github.com/mharlow/annex/internal/models"
)

// Rebuild assembles a fresh master index snapshot from everything currently
// stored and swaps it into the holder. Readers keep the previous snapshot
// until the swap; a failed rebuild leaves it untouched.
func Rebuild(db *DB, holder *masterindex.Holder, logger *slog.Logger) (*masterindex.MasterIndex, error) {
	files, err := db.AllFiles()
	if err != nil {
		return nil, err
	}
	entities, err := db.AllEntities()
	if err != nil {
		return nil, err
	}
	links, err := db.AllLinks()
	if err != nil {
		return nil, err
	}
	snippets, err := db.AllSnippets()
	if err != nil {
		return nil, err
	}
	cards, err := db.AllCards()
	if err != nil {
		return nil, err
	}
	cardContents, err := db.CardContents()
	if err != nil {
		return nil, err
	}
	fileContents, err := db.FileContents()
	if err != nil {
		return nil, err
	}

	// Offsets resolve against card uuids and file paths alike; the two key
	// spaces do not collide.
	contents := make(map[string]string, len(cardContents)+len(fileContents))
	for k, v := range fileContents {
		contents[k] = v
	}
	for k, v := range cardContents {
		contents[k] = v
	}

	idx := masterindex.Build(holder.NextVersion(), masterindex.Input{
		Files:      files,
		Entities:   entities,
		Links:      links,
		Snippets:   snippets,
		Cards:      cards,
		Contents:   contents,
		Referenced: referencedSidecars(files),
	})
	holder.Swap(idx)

	logger.Info("index: rebuilt",
		slog.Int("version", idx.Version),
		slog.Int("files", idx.Stats.TotalFiles),
		slog.Int("entities", idx.Stats.TotalEntities),
		slog.Int("links", idx.Stats.TotalLinks),
		slog.Int("broken", idx.Stats.BrokenReferenceCount))
	return idx, nil
}

var sidecarSuffixes = []string{
	".entity.txt", ".relate.txt", ".attrib.txt", ".comment.txt", ".kv.txt",
}

// referencedSidecars maps each sidecar path that still has a living base
// document. A sidecar doc.entity.txt belongs to doc.txt, doc.csv, or
// doc.card.txt; when none of those exist the sidecar is orphaned.
func referencedSidecars(files []models.FileRecord) map[string]struct{} {
	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f.Path] = struct{}{}
	}

	out := make(map[string]struct{})
	for _, f := range files {
		if f.Class != models.ClassMetadataSidecar {
			continue
		}
		base := sidecarBase(f.Path)
		if base == "" {
			continue
		}
		for _, cand := range []string{base + ".txt", base + ".csv", base + ".card.txt"} {
			if _, ok := present[cand]; ok {
				out[f.Path] = struct{}{}
				break
			}
		}
	}
	return out
}

// sidecarBase strips the sidecar suffix, returning the base document name.
func sidecarBase(path string) string {
	lower := strings.ToLower(path)
	for _, s := range sidecarSuffixes {
		if strings.HasSuffix(lower, s) {
			return path[:len(path)-len(s)]
		}
	}
	return ""
}
