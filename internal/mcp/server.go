package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/glowcloud/glow/internal/budget"
	"github.com/glowcloud/glow/internal/payment"
	"github.com/glowcloud/glow/internal/service"
)

// Deps are the gateway components the tools run against.
type Deps struct {
	Auth         *service.AuthService
	Ledger       *budget.Ledger
	Orchestrator *payment.Orchestrator
}

// MCPServer wraps the mcp-go server with the wallet tools and resources.
// Every call acts as the single API key the server was started with, so an
// agent gets exactly the permissions and spending limits of that key.
type MCPServer struct {
	deps    Deps
	rawKey  string
	version string
	logger  *slog.Logger
	server  *server.MCPServer
}

// NewMCPServer creates an MCPServer bound to rawKey. The key is resolved on
// every call, so revoking it takes effect immediately.
func NewMCPServer(deps Deps, rawKey, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	s := &MCPServer{
		deps:    deps,
		rawKey:  rawKey,
		version: version,
		logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		"Glow Lightning Wallet",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio serves over stdin/stdout, the mode MCP clients use when they
// launch the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP serves Streamable HTTP on addr (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
