// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helixml/filegraph/application/service"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/infrastructure/api/jsonapi"
)

// DefaultFileLimit is the page size of list_files_by_entity.
const DefaultFileLimit = 50

// FileLookup reads files by canonical id.
type FileLookup interface {
	Get(ctx context.Context, canonicalID string) (graph.File, error)
}

// EntityLookup resolves entities and their files.
type EntityLookup interface {
	Resolve(ctx context.Context, canonicalID string) (graph.Entity, error)
	ResolveByName(ctx context.Context, t graph.EntityType, naturalKey string) (graph.Entity, error)
	ListFiles(ctx context.Context, canonicalID string, limit, offset int) ([]graph.File, error)
}

// MergeHistory lists the merge events that touched an entity.
type MergeHistory interface {
	History(ctx context.Context, canonicalID string) ([]graph.MergeEvent, error)
}

// StatsSource computes aggregate statistics.
type StatsSource interface {
	Aggregate(ctx context.Context) (service.Aggregate, error)
}

// Deps are the read operations the tools call.
type Deps struct {
	Files    FileLookup
	Entities EntityLookup
	Merges   MergeHistory
	Stats    StatsSource
}

// Server wraps the MCP server with the filegraph read tools.
type Server struct {
	mcpServer  *server.MCPServer
	deps       Deps
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(deps Deps, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:       deps,
		serializer: jsonapi.NewSerializer(),
		logger:     logger,
	}

	mcpServer := server.NewMCPServer(
		"filegraph",
		version,
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("get_file",
		mcp.WithDescription("Get a file by its canonical id (urn:sha256:...)"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The canonical file id"),
		),
	), s.handleGetFile)

	mcpServer.AddTool(mcp.NewTool("list_files_by_entity",
		mcp.WithDescription("List the files linked to an entity, following merges to the live entity"),
		mcp.WithString("entity_id",
			mcp.Required(),
			mcp.Description("The canonical entity id (urn:uuid:...)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of files to return (default: 50)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of files to skip"),
		),
	), s.handleListFilesByEntity)

	mcpServer.AddTool(mcp.NewTool("resolve_entity",
		mcp.WithDescription("Resolve an entity id, or a type and name, to the live entity"),
		mcp.WithString("id",
			mcp.Description("The canonical entity id"),
		),
		mcp.WithString("type",
			mcp.Description("Entity type when resolving by name: category, company, person or location"),
		),
		mcp.WithString("name",
			mcp.Description("Entity name or natural key when resolving by name"),
		),
	), s.handleResolveEntity)

	mcpServer.AddTool(mcp.NewTool("get_merge_history",
		mcp.WithDescription("List the merge events that involved an entity, oldest first"),
		mcp.WithString("entity_id",
			mcp.Required(),
			mcp.Description("The canonical entity id"),
		),
	), s.handleMergeHistory)

	mcpServer.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Get aggregate graph and key-value store statistics"),
	), s.handleStats)
}

func (s *Server) handleGetFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	file, err := s.deps.Files.Get(ctx, id)
	if err != nil {
		return s.failure("get file", err, slog.String("id", id)), nil
	}
	return s.result(s.serializer.FileResource(file))
}

func (s *Server) handleListFilesByEntity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("entity_id")
	if err != nil {
		return mcp.NewToolResultError("entity_id is required"), nil
	}

	limit := request.GetInt("limit", DefaultFileLimit)
	offset := request.GetInt("offset", 0)

	files, err := s.deps.Entities.ListFiles(ctx, id, limit, offset)
	if err != nil {
		return s.failure("list files", err, slog.String("entity_id", id)), nil
	}
	return s.result(s.serializer.FileResources(files))
}

func (s *Server) handleResolveEntity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	typ := request.GetString("type", "")
	name := request.GetString("name", "")

	var (
		entity graph.Entity
		err    error
	)
	switch {
	case id != "":
		entity, err = s.deps.Entities.Resolve(ctx, id)
	case typ != "" && name != "":
		t, perr := graph.ParseEntityType(typ)
		if perr != nil {
			return mcp.NewToolResultError(perr.Error()), nil
		}
		entity, err = s.deps.Entities.ResolveByName(ctx, t, name)
	default:
		return mcp.NewToolResultError("either id or type and name are required"), nil
	}
	if err != nil {
		return s.failure("resolve entity", err, slog.String("id", id), slog.String("name", name)), nil
	}
	return s.result(s.serializer.EntityResource(entity))
}

func (s *Server) handleMergeHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("entity_id")
	if err != nil {
		return mcp.NewToolResultError("entity_id is required"), nil
	}

	events, err := s.deps.Merges.History(ctx, id)
	if err != nil {
		return s.failure("merge history", err, slog.String("entity_id", id)), nil
	}
	return s.result(s.serializer.MergeEventResources(events))
}

func (s *Server) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agg, err := s.deps.Stats.Aggregate(ctx)
	if err != nil {
		return s.failure("stats", err), nil
	}
	return s.result(s.serializer.StatsResource(agg))
}

func (s *Server) failure(op string, err error, attrs ...any) *mcp.CallToolResult {
	s.logger.Error(op+" failed", append(attrs, slog.Any("error", err))...)
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

func (s *Server) result(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MCPServer returns the underlying MCP server for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
