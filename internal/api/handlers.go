package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mharlow/annex/internal/annotation"
	"github.com/mharlow/annex/internal/apperr"
	"github.com/mharlow/annex/internal/models"
	"github.com/mharlow/annex/internal/similarity"
)

// Handler holds API route handlers.
type Handler struct {
	svc *annotation.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *annotation.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL (everything after
// /api/documents/). Supports encoded slashes from OpenAPI clients.
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get a single document by path
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	DocumentDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CreateDocument handles POST /api/documents.
//
//	@Summary		Create a new document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Document to create"
//	@Success		201		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	doc, err := h.svc.CreateDocument(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("document already exists"))
		} else {
			slog.Error("create document failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// UpdateDocument handles PUT /api/documents/*.
//
//	@Summary		Update a document with optimistic concurrency
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string					true	"Document path"
//	@Param			If-Match	header	string					false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdateDocumentRequest	true	"Updated content"
//	@Success		200		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [put]
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var req UpdateDocumentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	ifMatch := r.Header.Get("If-Match")
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch = strings.Trim(ifMatch, `"`)

	doc, err := h.svc.UpdateDocument(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		default:
			slog.Error("update document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/*.
//
//	@Summary		Delete a document
//	@Tags			documents
//	@Param			path	path	string	true	"Document path"
//	@Success		204		"Document deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), path); err != nil {
		slog.Error("delete document failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DocumentLinks handles GET /api/references.
//
//	@Summary		Parse wikilink references out of a document
//	@Tags			documents
//	@Produce		json
//	@Param			path	query		string	true	"Document path"
//	@Success		200		{object}	annotation.DocumentLinks
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/references [get]
func (h *Handler) DocumentLinks(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	links, err := h.svc.Links(r.Context(), path)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrContaminated):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("content failed contamination checks"))
		default:
			slog.Error("document links failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// Integrity handles GET /api/integrity.
//
//	@Summary		Check a card's content against its source document
//	@Tags			documents
//	@Produce		json
//	@Param			path	query		string	true	"Card path"
//	@Success		200		{object}	extract.IntegrityResult
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/integrity [get]
func (h *Handler) Integrity(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	res, err := h.svc.CheckIntegrity(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across document content
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// CreateEntity handles POST /api/entities.
//
//	@Summary		Create an entity, with a duplicate-similarity gate
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateEntityRequest	true	"Entity to create"
//	@Success		201		{object}	models.Entity
//	@Failure		409		{object}	EntityConflictResponse
//	@Security		BearerAuth
//	@Router			/entities [post]
func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}

	e := models.Entity{
		Name:        req.Name,
		Type:        models.NormalizeType(req.Type),
		DisplayName: req.DisplayName,
		Aliases:     req.Aliases,
		Properties:  req.Properties,
	}
	created, matches, err := h.svc.CreateEntity(r.Context(), e, req.Force)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			writeJSON(w, http.StatusConflict, EntityConflictResponse{
				Error:   "similar entities exist; retry with force to create anyway",
				Matches: matches,
			})
		} else {
			slog.Error("create entity failed", slog.String("name", req.Name), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetEntity handles GET /api/entities/{id}.
//
//	@Summary		Get an entity from the current index snapshot
//	@Tags			entities
//	@Produce		json
//	@Param			id	path		string	true	"Entity id"
//	@Success		200	{object}	models.Entity
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{id} [get]
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := h.svc.Index().Entity(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// EntityLinks handles GET /api/entities/{id}/links.
//
//	@Summary		List every link touching an entity
//	@Tags			entities
//	@Produce		json
//	@Param			id	path		string	true	"Entity id"
//	@Success		200	{object}	map[string]any
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{id}/links [get]
func (h *Handler) EntityLinks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	idx := h.svc.Index()
	if _, ok := idx.Entity(id); !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	links := idx.LinksFor(id)
	if links == nil {
		links = []models.Link{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"links": links,
	})
}

// SimilarEntities handles GET /api/entities/similar.
//
//	@Summary		Rank existing entities against a candidate name and type
//	@Tags			entities
//	@Produce		json
//	@Param			name	query		string	true	"Candidate name"
//	@Param			type	query		string	false	"Candidate type"
//	@Success		200		{object}	SimilarEntitiesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/similar [get]
func (h *Handler) SimilarEntities(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'name' is required"))
		return
	}
	typ := models.NormalizeType(r.URL.Query().Get("type"))
	matches := h.svc.SimilarEntities(r.Context(), name, typ)
	if matches == nil {
		matches = []similarity.Match{}
	}
	writeJSON(w, http.StatusOK, SimilarEntitiesResponse{Matches: matches})
}

// CreateLink handles POST /api/links.
//
//	@Summary		Create a link between two entities
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateLinkRequest	true	"Link to create"
//	@Success		201		{object}	models.Link
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.SourceEntityID == "" || req.TargetEntityID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source_entity_id and target_entity_id are required"))
		return
	}

	l := models.Link{
		SourceEntityID:  req.SourceEntityID,
		TargetEntityID:  req.TargetEntityID,
		Predicate:       req.Predicate,
		IsRelationship:  req.IsRelationship,
		IsAttribute:     req.IsAttribute,
		IsNormalization: req.IsNormalization,
		Direction:       models.Direction(req.Direction),
		Properties:      req.Properties,
		FilePath:        req.FilePath,
	}
	if req.Provenance != nil {
		l.Provenance = *req.Provenance
	}
	created, err := h.svc.CreateLink(r.Context(), l)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody(err.Error()))
		default:
			slog.Error("create link failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// CreateSnippet handles POST /api/snippets.
//
//	@Summary		Create a highlighted snippet on a card
//	@Tags			snippets
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateSnippetRequest	true	"Snippet to create"
//	@Success		201		{object}	models.Snippet
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/snippets [post]
func (h *Handler) CreateSnippet(w http.ResponseWriter, r *http.Request) {
	var req CreateSnippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.CardID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("card_id is required"))
		return
	}

	created, err := h.svc.CreateSnippet(r.Context(), models.Snippet{
		CardID:         req.CardID,
		Text:           req.Text,
		Offsets:        models.Span{Start: req.Start, End: req.End},
		Comment:        req.Comment,
		Classification: req.Classification,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody(err.Error()))
		default:
			slog.Error("create snippet failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// BrokenRefs handles GET /api/broken-refs.
//
//	@Summary		List broken references from the current snapshot
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/broken-refs [get]
func (h *Handler) BrokenRefs(w http.ResponseWriter, r *http.Request) {
	idx := h.svc.Index()
	broken := idx.BrokenReferences
	if broken == nil {
		broken = []models.BrokenReference{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":           idx.Version,
		"broken_references": broken,
	})
}

// Stats handles GET /api/stats.
//
//	@Summary		Aggregate counts from the current snapshot
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	masterindex.Stats
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	idx := h.svc.Index()
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  idx.Version,
		"built_at": idx.BuiltAt,
		"stats":    idx.Stats,
	})
}
