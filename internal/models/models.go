// Package models defines the domain types for Annex.
package models

import "time"

// EntityType classifies what kind of real-world referent an entity is.
type EntityType string

// Entity types. TypeEntity is the generic fallback used when inference
// cannot decide on anything more specific.
const (
	TypePerson   EntityType = "person"
	TypeOrg      EntityType = "org"
	TypeLocation EntityType = "location"
	TypeSelector EntityType = "selector"
	TypeDate     EntityType = "date"
	TypeEvent    EntityType = "event"
	TypeObject   EntityType = "object"
	TypeConcept  EntityType = "concept"
	TypeEntity   EntityType = "entity"
)

// legacyTypeAliases maps historical type strings, seen in older corpora,
// onto the current enum. Resolved once at parse time.
var legacyTypeAliases = map[string]EntityType{
	"label":        TypeConcept,
	"data":         TypeObject,
	"individual":   TypePerson,
	"organisation": TypeOrg,
	"organization": TypeOrg,
	"company":      TypeOrg,
	"place":        TypeLocation,
}

// NormalizeType resolves a raw type string (current or legacy) to an
// EntityType. Unrecognized strings fall back to the generic entity type.
func NormalizeType(raw string) EntityType {
	switch t := EntityType(raw); t {
	case TypePerson, TypeOrg, TypeLocation, TypeSelector, TypeDate,
		TypeEvent, TypeObject, TypeConcept, TypeEntity:
		return t
	}
	if t, ok := legacyTypeAliases[raw]; ok {
		return t
	}
	return TypeEntity
}

// Entity is a canonicalized real-world referent extracted from document text.
// Entities are never hard-deleted, only unreferenced.
type Entity struct {
	ID          string            `json:"id"`
	Type        EntityType        `json:"type"`
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name,omitempty"`
	Aliases     []string          `json:"aliases,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Direction describes how a link should be read between its endpoints.
type Direction string

// Link directions.
const (
	DirectionNone          Direction = "none"
	DirectionForward       Direction = "forward"
	DirectionBackward      Direction = "backward"
	DirectionBidirectional Direction = "bidirectional"
)

// Span is a half-open character range [Start, End) into document content.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Provenance records where a link was asserted: the card it came from and,
// optionally, the character range within that card's content.
type Provenance struct {
	SourceCardID string `json:"source_card_id"`
	Offsets      *Span  `json:"offsets,omitempty"`
}

// Link is a directed, typed relationship or attribute between two entities.
// The Is* flags are non-exclusive.
type Link struct {
	ID              string            `json:"id"`
	SourceEntityID  string            `json:"source_entity_id"`
	TargetEntityID  string            `json:"target_entity_id"`
	Predicate       string            `json:"predicate"`
	IsRelationship  bool              `json:"is_relationship"`
	IsAttribute     bool              `json:"is_attribute"`
	IsNormalization bool              `json:"is_normalization"`
	Direction       Direction         `json:"direction"`
	Properties      map[string]string `json:"properties,omitempty"`
	Provenance      Provenance        `json:"provenance"`
	FilePath        string            `json:"file_path,omitempty"`
}

// Snippet is a highlighted excerpt of a card with optional analyst commentary.
// Classification is inherited from the card unless overridden.
type Snippet struct {
	ID             string `json:"id"`
	CardID         string `json:"card_id"`
	Text           string `json:"text"`
	Offsets        Span   `json:"offsets"`
	Comment        string `json:"comment,omitempty"`
	Analyst        string `json:"analyst,omitempty"`
	Classification string `json:"classification,omitempty"`
}

// FileMeta is the lightweight view of a corpus file returned by storage
// listings, before any classification or extraction.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileClass is the result of classifying a corpus filename.
type FileClass string

// File classes.
const (
	ClassSourceDocument  FileClass = "source_document"
	ClassMetadataSidecar FileClass = "metadata_sidecar"
	ClassCompositeCard   FileClass = "composite_card"
	ClassUnknown         FileClass = "unknown"
)

// FileRecord is the indexed view of a single corpus file.
type FileRecord struct {
	Path      string    `json:"path"`
	Class     FileClass `json:"class"`
	Checksum  string    `json:"checksum"`
	CardUUID  string    `json:"card_uuid,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BrokenReason classifies why a reference could not be resolved.
type BrokenReason string

// Broken reference reasons.
const (
	ReasonMissingSourceEntity BrokenReason = "missing_source_entity"
	ReasonMissingTargetEntity BrokenReason = "missing_target_entity"
	ReasonMissingCard         BrokenReason = "missing_card"
	ReasonOrphanedFile        BrokenReason = "orphaned_file"
)

// BrokenReference is a diagnostic produced by an index rebuild. It is a
// point-in-time view, never persisted as authoritative state.
type BrokenReference struct {
	ReferenceID string       `json:"reference_id"`
	Reason      BrokenReason `json:"reason"`
	Details     string       `json:"details"`
	FilePath    string       `json:"file_path"`
}

// Card is the structured form of a composite card file: ordered headers,
// a key-value section, body content, and tag references.
type Card struct {
	UUID      string            `json:"uuid"`
	Headers   map[string]string `json:"headers,omitempty"`
	KeyValues map[string]string `json:"key_values,omitempty"`
	Content   string            `json:"content"`
	TagRefs   []string          `json:"tag_refs,omitempty"`
}
