package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/glowcloud/glow/internal/model"
)

const keyResourceURI = "glow://key"

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// glow://key — the bound key's permissions and limits
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			keyResourceURI,
			"API Key",
			mcp.WithResourceDescription(
				"The API key this server acts as: its name, permissions, "+
					"per-payment maximum and budget with current-period usage.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleKeyResource,
	)
}

// keyResource is the glow://key document.
type keyResource struct {
	model.KeyView
	PeriodStart *time.Time `json:"period_start,omitempty"`
}

// handleKeyResource describes the bound key. It fails when the key has been
// revoked.
func (s *MCPServer) handleKeyResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	key, err := s.authorize(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve api key: %w", err)
	}

	doc := keyResource{KeyView: model.KeyViewFrom(key)}
	if key.HasBudget() {
		status, err := s.deps.Ledger.Status(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load budget: %w", err)
		}
		doc.SpentSats = &status.SpentSats
		doc.RemainingSats = status.RemainingSats
		doc.PeriodStart = status.PeriodStart
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      keyResourceURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
