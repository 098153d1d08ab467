package api

import (
	"github.com/mharlow/annex/internal/annotation"
	"github.com/mharlow/annex/internal/models"
	"github.com/mharlow/annex/internal/similarity"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path    string `json:"path" example:"reports/intake.txt" validate:"required"`
	Content string `json:"content" example:"field report body" validate:"required"`
}

// UpdateDocumentRequest is the request body for updating a document.
type UpdateDocumentRequest struct {
	Content string `json:"content" example:"updated body" validate:"required"`
}

// CreateEntityRequest is the request body for creating an entity. Force
// bypasses the duplicate-similarity gate.
type CreateEntityRequest struct {
	Name        string            `json:"name" example:"Acme Corp" validate:"required"`
	Type        string            `json:"type" example:"org"`
	DisplayName string            `json:"display_name,omitempty"`
	Aliases     []string          `json:"aliases,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
	Force       bool              `json:"force,omitempty"`
}

// CreateLinkRequest is the request body for creating a link.
type CreateLinkRequest struct {
	SourceEntityID  string             `json:"source_entity_id" validate:"required"`
	TargetEntityID  string             `json:"target_entity_id" validate:"required"`
	Predicate       string             `json:"predicate,omitempty"`
	IsRelationship  bool               `json:"is_relationship,omitempty"`
	IsAttribute     bool               `json:"is_attribute,omitempty"`
	IsNormalization bool               `json:"is_normalization,omitempty"`
	Direction       string             `json:"direction,omitempty"`
	Properties      map[string]string  `json:"properties,omitempty"`
	Provenance      *models.Provenance `json:"provenance,omitempty"`
	FilePath        string             `json:"file_path,omitempty"`
}

// CreateSnippetRequest is the request body for creating a snippet.
type CreateSnippetRequest struct {
	CardID         string `json:"card_id" validate:"required"`
	Start          int    `json:"start"`
	End            int    `json:"end"`
	Text           string `json:"text,omitempty"`
	Comment        string `json:"comment,omitempty"`
	Classification string `json:"classification,omitempty"`
}

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = annotation.DocumentDetail

// SimilarEntitiesResponse wraps ranked duplicate candidates.
type SimilarEntitiesResponse struct {
	Matches []similarity.Match `json:"matches" validate:"required"`
}

// EntityConflictResponse is returned when entity creation is blocked by
// similar existing entities.
type EntityConflictResponse struct {
	Error   string             `json:"error" validate:"required"`
	Matches []similarity.Match `json:"matches" validate:"required"`
}
