//go:build sqlite_fts5

package index

import (
	"testing"
	"time"

	"github.com/mharlow/annex/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM files_fts`).Scan(&count); err != nil {
		t.Fatalf("files_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	rec := models.FileRecord{Path: "fts.txt", Class: models.ClassSourceDocument, Checksum: "f1", UpdatedAt: time.Now()}
	if err := db.UpsertFile(rec, "Annex provides powerful full-text search capabilities."); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Path != "fts.txt" {
		t.Errorf("path = %q", results[0].Path)
	}
	// FTS5 snippet should contain bold markers.
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertFile(models.FileRecord{Path: "gone.txt", Class: models.ClassSourceDocument, UpdatedAt: time.Now()}, "vanishing content")
	_ = db.DeleteFile("gone.txt")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.Path == "gone.txt" {
			t.Error("deleted file still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertFile(models.FileRecord{Path: "evo.txt", Class: models.ClassSourceDocument, Checksum: "1", UpdatedAt: now}, "original text")
	_ = db.UpsertFile(models.FileRecord{Path: "evo.txt", Class: models.ClassSourceDocument, Checksum: "2", UpdatedAt: now}, "replacement text")

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 {
		t.Errorf("FTS not updated: %+v", results)
	}
}
