package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mharlow/annex/internal/annotation"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *annotation.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents CRUD.
	r.Post("/documents", h.CreateDocument)
	r.Get("/documents/*", h.GetDocument)
	r.Put("/documents/*", h.UpdateDocument)
	r.Delete("/documents/*", h.DeleteDocument)

	// Reference parsing and content integrity.
	r.Get("/references", h.DocumentLinks)
	r.Get("/integrity", h.Integrity)

	// Search.
	r.Get("/search", h.Search)

	// Entities, links, snippets.
	r.Post("/entities", h.CreateEntity)
	r.Get("/entities/similar", h.SimilarEntities)
	r.Get("/entities/{id}", h.GetEntity)
	r.Get("/entities/{id}/links", h.EntityLinks)
	r.Post("/links", h.CreateLink)
	r.Post("/snippets", h.CreateSnippet)

	// Index snapshot queries.
	r.Get("/broken-refs", h.BrokenRefs)
	r.Get("/stats", h.Stats)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
