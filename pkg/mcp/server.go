package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/vector"
)

// Server exposes the context runtime tools over the MCP protocol.
type Server struct {
	mcp      *server.MCPServer
	registry *Registry
	store    vector.Store
	logger   *zap.Logger
}

// NewServer builds the MCP server and registers the runtime tools.
func NewServer(name, version string, registry *Registry, store vector.Store, logger *zap.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
		),
		registry: registry,
		store:    store,
		logger:   logger.Named("mcp_server"),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying server for additional tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer wraps the server in the event-stream HTTP
// transport. The outer mux routes to it, so no endpoint path here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

func (s *Server) registerTools() {
	storeTool := mcp.NewTool(
		"store_document",
		mcp.WithDescription(
			"Store a piece of information in the knowledge base. "+
				"The text is embedded and indexed for later similarity retrieval. "+
				"Returns the assigned document id."),
		mcp.WithString(
			"information",
			mcp.Required(),
			mcp.Description("The text to store."),
		),
		mcp.WithObject(
			"metadata",
			mcp.Description("Optional metadata attached to the document (owner_id, area_id, embedding_type, ...)."),
		),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
	s.mcp.AddTool(storeTool, s.handleStoreDocument)

	findTool := mcp.NewTool(
		"find_relevant",
		mcp.WithDescription(
			"Search the knowledge base for fragments relevant to a query. "+
				"Returns up to limit results as {text, score, metadata}, ordered by descending score."),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("The natural-language query."),
		),
		mcp.WithString(
			"embedding_type",
			mcp.Description("Collection to search: 'general' (default) or 'personal'."),
		),
		mcp.WithString(
			"owner_id",
			mcp.Description("Restrict results to documents owned by this user."),
		),
		mcp.WithString(
			"area_id",
			mcp.Description("Restrict results to documents of this knowledge area."),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Maximum number of results (default 5)."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
	s.mcp.AddTool(findTool, s.handleFindRelevant)
}
