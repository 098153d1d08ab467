package index

import "github.com/mharlow/annex/internal/models"

// Store defines the persistence operations for the annotation graph.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type Store interface {
	UpsertFile(rec models.FileRecord, content string) error
	DeleteFile(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	AllFiles() ([]models.FileRecord, error)
	FileContents() (map[string]string, error)

	UpsertCard(card models.Card, path string, content string) error
	AllCards() (map[string]models.Card, error)
	CardContents() (map[string]string, error)

	UpsertEntity(e models.Entity) error
	GetEntity(id string) (*models.Entity, error)
	AllEntities() ([]models.Entity, error)

	UpsertLink(l models.Link) error
	AllLinks() ([]models.Link, error)

	UpsertSnippet(s models.Snippet) error
	AllSnippets() ([]models.Snippet, error)

	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// SearchResult is one full-text search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Snippet string `json:"snippet"`
}
