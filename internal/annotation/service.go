// Package annotation coordinates storage, extraction, and index operations
// behind the HTTP and MCP surfaces.
package annotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mharlow/annex/internal/apperr"
	"github.com/mharlow/annex/internal/checksum"
	"github.com/mharlow/annex/internal/extract"
	"github.com/mharlow/annex/internal/index"
	"github.com/mharlow/annex/internal/masterindex"
	"github.com/mharlow/annex/internal/models"
	"github.com/mharlow/annex/internal/similarity"
	"github.com/mharlow/annex/internal/storage"
	"github.com/mharlow/annex/internal/wikilink"
)

// DocumentDetail is the full representation of a corpus document: its
// class, the clean extracted content, and any extraction diagnostics.
// Content is empty when the contamination validator tripped; the failed
// check names are listed instead so callers can render a visible error.
type DocumentDetail struct {
	Path             string               `json:"path"`
	Class            models.FileClass     `json:"class"`
	Content          string               `json:"content"`
	UserAddedContent string               `json:"user_added_content,omitempty"`
	SourceType       string               `json:"source_type,omitempty"`
	OriginalFilename string               `json:"original_filename,omitempty"`
	CardUUID         string               `json:"card_uuid,omitempty"`
	Checksum         string               `json:"checksum"`
	Contaminated     []string             `json:"contaminated,omitempty"`
	Diagnostics      []extract.Diagnostic `json:"diagnostics,omitempty"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// DocumentLinks are the references parsed out of a document's clean content.
type DocumentLinks struct {
	Path       string                `json:"path"`
	Links      []wikilink.ParsedLink `json:"links"`
	LegacyTags []wikilink.LegacyTag  `json:"legacy_tags,omitempty"`
}

// Service coordinates storage and index operations. The analyst name is
// injected at construction so every attribution is explicit.
type Service struct {
	store   storage.Provider
	db      *index.DB
	holder  *masterindex.Holder
	analyst string
	logger  *slog.Logger
}

// NewService creates a new annotation service.
func NewService(store storage.Provider, db *index.DB, holder *masterindex.Holder, analyst string, logger *slog.Logger) *Service {
	return &Service{store: store, db: db, holder: holder, analyst: analyst, logger: logger}
}

// Index returns the current master index snapshot.
func (s *Service) Index() *masterindex.MasterIndex {
	return s.holder.Current()
}

// GetDocument reads a document from storage and extracts its clean content.
func (s *Service) GetDocument(_ context.Context, path string) (*DocumentDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildDetail(path, data), nil
}

// CreateDocument writes a new document and indexes it.
func (s *Service) CreateDocument(_ context.Context, path string, content []byte) (*DocumentDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.reindex(path, content); err != nil {
		return nil, err
	}
	return s.buildDetail(path, content), nil
}

// UpdateDocument writes updated content with optimistic concurrency: a
// non-empty ifMatch must equal the checksum of the content on disk.
func (s *Service) UpdateDocument(_ context.Context, path string, content []byte, ifMatch string) (*DocumentDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.reindex(path, content); err != nil {
		return nil, err
	}
	return s.buildDetail(path, content), nil
}

// DeleteDocument removes a document from storage and index.
func (s *Service) DeleteDocument(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if err := s.db.DeleteFile(path); err != nil {
		return err
	}
	return s.rebuild()
}

// Links parses the wikilink grammar (and any legacy inline tags) out of a
// document's clean content.
func (s *Service) Links(ctx context.Context, path string) (*DocumentLinks, error) {
	detail, err := s.GetDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(detail.Contaminated) > 0 {
		return nil, apperr.ErrContaminated
	}
	return &DocumentLinks{
		Path:       path,
		Links:      wikilink.Parse(detail.Content),
		LegacyTags: wikilink.ParseLegacyTags(detail.Content),
	}, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// SimilarEntities scores a candidate name and type against every entity in
// the current snapshot and returns the ranked duplicates, if any.
func (s *Service) SimilarEntities(_ context.Context, name string, typ models.EntityType) []similarity.Match {
	return similarity.Score(name, typ, s.holder.Current().Entities)
}

// CreateEntity stores a new entity. Unless force is set, a non-empty
// similarity result blocks creation and the candidates are returned so the
// caller can decide whether this is a duplicate.
func (s *Service) CreateEntity(ctx context.Context, e models.Entity, force bool) (*models.Entity, []similarity.Match, error) {
	matches := s.SimilarEntities(ctx, e.Name, e.Type)
	if len(matches) > 0 && !force {
		return nil, matches, apperr.ErrConflict
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Type == "" {
		e.Type = models.TypeEntity
	}

	if err := s.db.UpsertEntity(e); err != nil {
		return nil, nil, err
	}
	if err := s.rebuild(); err != nil {
		return nil, nil, err
	}
	return &e, matches, nil
}

// CreateLink stores a link between two existing entities. Provenance
// offsets, when present, must fall inside the source card's current content.
func (s *Service) CreateLink(_ context.Context, l models.Link) (*models.Link, error) {
	for _, id := range []string{l.SourceEntityID, l.TargetEntityID} {
		e, err := s.db.GetEntity(id)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, fmt.Errorf("entity %s: %w", id, apperr.ErrNotFound)
		}
	}

	if p := l.Provenance; p.SourceCardID != "" && p.Offsets != nil {
		content, err := s.cardContent(p.SourceCardID)
		if err != nil {
			return nil, err
		}
		if p.Offsets.Start < 0 || p.Offsets.Start > p.Offsets.End || p.Offsets.End > len(content) {
			return nil, fmt.Errorf("provenance offsets %d-%d out of range for card %s: %w",
				p.Offsets.Start, p.Offsets.End, p.SourceCardID, apperr.ErrConflict)
		}
	}

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Direction == "" {
		l.Direction = models.DirectionNone
	}
	if err := s.db.UpsertLink(l); err != nil {
		return nil, err
	}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateSnippet stores a highlighted excerpt of a card. Offsets must fall
// inside the card's current content; an empty Text is filled from the
// offsets so the snippet can later re-anchor itself on drift.
func (s *Service) CreateSnippet(_ context.Context, sn models.Snippet) (*models.Snippet, error) {
	content, err := s.cardContent(sn.CardID)
	if err != nil {
		return nil, err
	}
	if sn.Offsets.Start < 0 || sn.Offsets.Start > sn.Offsets.End || sn.Offsets.End > len(content) {
		return nil, fmt.Errorf("snippet offsets %d-%d out of range for card %s: %w",
			sn.Offsets.Start, sn.Offsets.End, sn.CardID, apperr.ErrConflict)
	}

	if sn.Text == "" {
		sn.Text = content[sn.Offsets.Start:sn.Offsets.End]
	}
	if sn.ID == "" {
		sn.ID = uuid.NewString()
	}
	if sn.Analyst == "" {
		sn.Analyst = s.analyst
	}
	if err := s.db.UpsertSnippet(sn); err != nil {
		return nil, err
	}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return &sn, nil
}

// CheckIntegrity verifies that a card still carries its source document's
// original text. The source is located through the card's source_file
// header; a card with no recoverable source cannot be checked.
func (s *Service) CheckIntegrity(ctx context.Context, cardPath string) (*extract.IntegrityResult, error) {
	detail, err := s.GetDocument(ctx, cardPath)
	if err != nil {
		return nil, err
	}
	if detail.Class != models.ClassCompositeCard {
		return nil, fmt.Errorf("not a composite card: %s", cardPath)
	}
	if detail.OriginalFilename == "" {
		return nil, fmt.Errorf("card %s names no source file: %w", cardPath, apperr.ErrNotFound)
	}

	source, err := s.GetDocument(ctx, detail.OriginalFilename)
	if err != nil {
		return nil, err
	}
	res := extract.CompareIntegrity(detail.Content, source.Content)
	return &res, nil
}

// reindex persists one changed file and swaps in a fresh snapshot.
func (s *Service) reindex(path string, data []byte) error {
	if err := index.IndexFile(s.db, path, data, s.logger); err != nil {
		return err
	}
	return s.rebuild()
}

func (s *Service) rebuild() error {
	_, err := index.Rebuild(s.db, s.holder, s.logger)
	return err
}

// cardContent looks up the clean content of one card.
func (s *Service) cardContent(cardID string) (string, error) {
	contents, err := s.db.CardContents()
	if err != nil {
		return "", err
	}
	content, ok := contents[cardID]
	if !ok {
		return "", fmt.Errorf("card %s: %w", cardID, apperr.ErrNotFound)
	}
	return content, nil
}

// buildDetail constructs a DocumentDetail from raw data without re-reading
// the file. Contaminated card content is withheld, never partially shown.
func (s *Service) buildDetail(path string, data []byte) *DocumentDetail {
	res := extract.Extract(data, path)
	detail := &DocumentDetail{
		Path:             path,
		Class:            extract.Classify(path),
		Content:          res.Content,
		UserAddedContent: res.UserAddedContent,
		SourceType:       res.SourceType,
		OriginalFilename: res.OriginalFilename,
		Checksum:         checksum.Sum(data),
		Diagnostics:      res.Diagnostics,
		UpdatedAt:        time.Now().UTC(),
	}
	if detail.Class == models.ClassCompositeCard {
		detail.CardUUID = extract.ParseCard(data).UUID
		if ok, tripped := extract.Validate(res.Content); !ok {
			detail.Content = ""
			detail.UserAddedContent = ""
			detail.Contaminated = tripped
		}
	}
	return detail
}
