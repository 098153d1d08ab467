package index

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mharlow/annex/internal/masterindex"
	"github.com/mharlow/annex/internal/models"
	"github.com/mharlow/annex/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "annex-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	for _, table := range []string{"files", "cards", "entities", "links", "snippets"} {
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertFileAndChecksum(t *testing.T) {
	db := testDB(t)
	rec := models.FileRecord{
		Path:      "report.txt",
		Class:     models.ClassSourceDocument,
		Checksum:  "abc123",
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertFile(rec, "plain report text"); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	cs, err := db.GetChecksum("report.txt")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	contents, err := db.FileContents()
	if err != nil {
		t.Fatalf("FileContents: %v", err)
	}
	if contents["report.txt"] != "plain report text" {
		t.Errorf("content = %q", contents["report.txt"])
	}
}

func TestDeleteFileRemovesCard(t *testing.T) {
	db := testDB(t)
	rec := models.FileRecord{Path: "x.card.txt", Class: models.ClassCompositeCard, CardUUID: "c1", UpdatedAt: time.Now()}
	if err := db.UpsertFile(rec, "body"); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	if err := db.UpsertCard(models.Card{UUID: "c1"}, "x.card.txt", "body"); err != nil {
		t.Fatalf("UpsertCard: %v", err)
	}

	if err := db.DeleteFile("x.card.txt"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	cs, _ := db.GetChecksum("x.card.txt")
	if cs != "" {
		t.Error("file record should be gone")
	}
	cards, _ := db.AllCards()
	if _, ok := cards["c1"]; ok {
		t.Error("card record should be gone with its file")
	}
}

func TestEntityRoundTrip(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	e := models.Entity{
		ID:          "e1",
		Type:        models.TypePerson,
		Name:        "Robert Richard Renasco",
		DisplayName: "Bob",
		Aliases:     []string{"Bob", "RRR"},
		Properties:  map[string]string{"role": "analyst"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.UpsertEntity(e); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}

	got, err := db.GetEntity("e1")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got == nil {
		t.Fatal("entity not found")
	}
	if got.Type != models.TypePerson || got.Name != e.Name || got.DisplayName != "Bob" {
		t.Errorf("entity = %+v", got)
	}
	if len(got.Aliases) != 2 || got.Properties["role"] != "analyst" {
		t.Errorf("json columns = %+v %+v", got.Aliases, got.Properties)
	}

	missing, err := db.GetEntity("nope")
	if err != nil {
		t.Fatalf("GetEntity missing: %v", err)
	}
	if missing != nil {
		t.Error("missing entity should be nil")
	}
}

func TestLinkRoundTrip(t *testing.T) {
	db := testDB(t)
	l := models.Link{
		ID:             "l1",
		SourceEntityID: "e1",
		TargetEntityID: "e2",
		Predicate:      "works_at",
		IsRelationship: true,
		Direction:      models.DirectionForward,
		Provenance: models.Provenance{
			SourceCardID: "c1",
			Offsets:      &models.Span{Start: 10, End: 25},
		},
		FilePath: "doc.relate.txt",
	}
	if err := db.UpsertLink(l); err != nil {
		t.Fatalf("UpsertLink: %v", err)
	}

	links, err := db.AllLinks()
	if err != nil {
		t.Fatalf("AllLinks: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %d, want 1", len(links))
	}
	got := links[0]
	if !got.IsRelationship || got.IsAttribute || got.Direction != models.DirectionForward {
		t.Errorf("flags = %+v", got)
	}
	if got.Provenance.Offsets == nil || got.Provenance.Offsets.Start != 10 || got.Provenance.Offsets.End != 25 {
		t.Errorf("offsets = %+v", got.Provenance.Offsets)
	}

	// Links without offsets come back with a nil span.
	l2 := l
	l2.ID = "l2"
	l2.Provenance.Offsets = nil
	_ = db.UpsertLink(l2)
	links, _ = db.AllLinks()
	if links[1].Provenance.Offsets != nil {
		t.Error("absent offsets should round-trip as nil")
	}
}

func TestSnippetRoundTrip(t *testing.T) {
	db := testDB(t)
	s := models.Snippet{
		ID:      "s1",
		CardID:  "c1",
		Text:    "quick brown fox",
		Offsets: models.Span{Start: 4, End: 19},
		Comment: "key passage",
		Analyst: "mh",
	}
	if err := db.UpsertSnippet(s); err != nil {
		t.Fatalf("UpsertSnippet: %v", err)
	}
	snips, err := db.AllSnippets()
	if err != nil {
		t.Fatalf("AllSnippets: %v", err)
	}
	if len(snips) != 1 || snips[0].Offsets.End != 19 || snips[0].Comment != "key passage" {
		t.Errorf("snippets = %+v", snips)
	}
}

func TestSync_IndexesCorpus(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("doc.txt", "A plain source document.")
	write("doc.entity.txt", "entity: e1")
	write("intake.card.txt", `UUID: card-1
CLASSIFICATION: internal
KEYVALUE_PAIRS:
source: intake
CONTENT:
=== ORIGINAL CONTENT START ===
The quick brown fox.
=== ORIGINAL CONTENT END ===
TAGS:
tag_ref: t1
=== END CARD ===
`)

	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)

	if err := Sync(db, store, discardLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	files, err := db.AllFiles()
	if err != nil {
		t.Fatalf("AllFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %d, want 3", len(files))
	}

	cards, err := db.AllCards()
	if err != nil {
		t.Fatalf("AllCards: %v", err)
	}
	card, ok := cards["card-1"]
	if !ok {
		t.Fatal("card-1 not indexed")
	}
	if card.Headers["CLASSIFICATION"] != "internal" || len(card.TagRefs) != 1 {
		t.Errorf("card = %+v", card)
	}

	contents, _ := db.CardContents()
	if contents["card-1"] != "The quick brown fox." {
		t.Errorf("card content = %q, want clean extraction", contents["card-1"])
	}

	// A second sync with nothing changed is a no-op.
	if err := Sync(db, store, discardLogger()); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	// Removing a file on disk prunes it from the index.
	os.Remove(filepath.Join(dir, "doc.txt"))
	if err := Sync(db, store, discardLogger()); err != nil {
		t.Fatalf("third Sync: %v", err)
	}
	files, _ = db.AllFiles()
	if len(files) != 2 {
		t.Errorf("files after prune = %d, want 2", len(files))
	}
}

func TestSync_ContaminatedCardNotIndexed(t *testing.T) {
	dir := t.TempDir()
	leaky := `UUID: card-2
KEYVALUE_PAIRS:
CONTENT:
=== ORIGINAL CONTENT START ===
UUID: 123e4567-e89b-12d3-a456-426614174000 leaked into content
=== ORIGINAL CONTENT END ===
TAGS:
=== END CARD ===
`
	if err := os.WriteFile(filepath.Join(dir, "leak.card.txt"), []byte(leaky), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	if err := Sync(db, store, discardLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	contents, _ := db.CardContents()
	if contents["card-2"] != "" {
		t.Errorf("contaminated content was indexed: %q", contents["card-2"])
	}
}

func TestRebuild_SwapsSnapshot(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC()

	_ = db.UpsertFile(models.FileRecord{Path: "a.card.txt", Class: models.ClassCompositeCard, CardUUID: "c1", UpdatedAt: now}, "Jane works at Acme")
	_ = db.UpsertCard(models.Card{UUID: "c1"}, "a.card.txt", "Jane works at Acme")
	_ = db.UpsertFile(models.FileRecord{Path: "stray.entity.txt", Class: models.ClassMetadataSidecar, UpdatedAt: now}, "")
	_ = db.UpsertEntity(models.Entity{ID: "e1", Type: models.TypePerson, Name: "Jane", CreatedAt: now, UpdatedAt: now})
	_ = db.UpsertLink(models.Link{ID: "l1", SourceEntityID: "e1", TargetEntityID: "gone"})

	holder := masterindex.NewHolder()
	idx, err := Rebuild(db, holder, discardLogger())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if holder.Current() != idx {
		t.Error("holder should expose the new snapshot")
	}
	if idx.Stats.TotalFiles != 2 || idx.Stats.TotalEntities != 1 || idx.Stats.TotalLinks != 1 {
		t.Errorf("stats = %+v", idx.Stats)
	}

	reasons := map[models.BrokenReason]bool{}
	for _, b := range idx.BrokenReferences {
		reasons[b.Reason] = true
	}
	if !reasons[models.ReasonMissingTargetEntity] {
		t.Error("dangling link target not reported")
	}
	if !reasons[models.ReasonOrphanedFile] {
		t.Error("orphaned sidecar not reported")
	}
}

func TestReferencedSidecars(t *testing.T) {
	files := []models.FileRecord{
		{Path: "doc.txt", Class: models.ClassSourceDocument},
		{Path: "doc.entity.txt", Class: models.ClassMetadataSidecar},
		{Path: "card.card.txt", Class: models.ClassCompositeCard},
		{Path: "card.relate.txt", Class: models.ClassMetadataSidecar},
		{Path: "stray.comment.txt", Class: models.ClassMetadataSidecar},
	}
	ref := referencedSidecars(files)
	if _, ok := ref["doc.entity.txt"]; !ok {
		t.Error("doc.entity.txt should be referenced by doc.txt")
	}
	if _, ok := ref["card.relate.txt"]; !ok {
		t.Error("card.relate.txt should be referenced by card.card.txt")
	}
	if _, ok := ref["stray.comment.txt"]; ok {
		t.Error("stray.comment.txt has no base document")
	}
}

func TestSearchFallback(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFile(models.FileRecord{Path: "notes.txt", Class: models.ClassSourceDocument, UpdatedAt: time.Now()}, "annex indexes analyst corpora")

	results, err := db.Search("analyst", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "notes.txt" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}
