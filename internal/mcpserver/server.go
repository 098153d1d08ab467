// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Annex tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mharlow/annex/internal/annotation"
	"github.com/mharlow/annex/internal/models"
)

// Server wraps the MCP server with Annex tools.
type Server struct {
	mcp *server.MCPServer
	svc *annotation.Service
}

// New creates a new MCP server with all Annex tools registered.
func New(svc *annotation.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Annex",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through the clean extracted content of corpus documents."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a corpus document: its class, clean extracted content, and any "+
			"extraction diagnostics. Contaminated card content is withheld and the failed "+
			"checks are listed instead. Read the card format first via the get_card_contract "+
			"tool or the annex://card-format resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. reports/intake.card.txt)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("get_entity",
		mcp.WithDescription("Look up an entity by id in the current index snapshot, with every link touching it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity id")),
	), s.getEntity)

	s.mcp.AddTool(mcp.NewTool("find_similar_entities",
		mcp.WithDescription("Rank existing entities against a candidate name and type to spot duplicates before creating."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Candidate entity name")),
		mcp.WithString("type", mcp.Description("Candidate entity type (person, org, location, selector, date, event, object, concept)")),
	), s.findSimilarEntities)

	s.mcp.AddTool(mcp.NewTool("get_broken_references",
		mcp.WithDescription("List broken references from the current index snapshot, classified by reason."),
	), s.getBrokenReferences)

	s.mcp.AddTool(mcp.NewTool("index_stats",
		mcp.WithDescription("Aggregate counts from the current index snapshot."),
	), s.indexStats)

	s.mcp.AddTool(mcp.NewTool("get_card_contract",
		mcp.WithDescription("Returns the canonical Annex card format contract. "+
			"Call this before producing or editing composite cards."),
	), s.getCardContract)

	// Resource: card format contract.
	s.mcp.AddResource(
		mcp.NewResource("annex://card-format", "Card Format Contract",
			mcp.WithResourceDescription("Canonical composite card format that all cards must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	out, _ := json.MarshalIndent(doc, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx := s.svc.Index()
	e, ok := idx.Entity(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("entity not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"entity": e,
		"links":  idx.LinksFor(id),
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) findSimilarEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ := models.TypeEntity
	if raw, err := req.RequireString("type"); err == nil {
		typ = models.NormalizeType(raw)
	}
	matches := s.svc.SimilarEntities(ctx, name, typ)
	if len(matches) == 0 {
		return mcp.NewToolResultText("no similar entities found"), nil
	}
	out, _ := json.MarshalIndent(matches, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBrokenReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx := s.svc.Index()
	if len(idx.BrokenReferences) == 0 {
		return mcp.NewToolResultText("no broken references"), nil
	}
	out, _ := json.MarshalIndent(idx.BrokenReferences, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) indexStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx := s.svc.Index()
	out, _ := json.MarshalIndent(map[string]any{
		"version":  idx.Version,
		"built_at": idx.BuiltAt,
		"stats":    idx.Stats,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getCardContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract), nil
}

func (s *Server) readCardFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "annex://card-format",
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}
