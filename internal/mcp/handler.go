package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/glowcloud/glow/internal/budget"
	"github.com/glowcloud/glow/internal/payment"
	"github.com/glowcloud/glow/internal/service"
	"github.com/glowcloud/glow/internal/wallet"
)

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireString extracts a required string argument from the tool request.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || val == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return val, nil
}

// optionalString extracts an optional string argument from the tool request.
func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

// optionalInt extracts an optional integer argument from the tool request.
func optionalInt(request mcp.CallToolRequest, key string, defaultVal int) int {
	return request.GetInt(key, defaultVal)
}

// optionalSats returns nil when key is absent, so "no amount" stays
// distinguishable from zero.
func optionalSats(request mcp.CallToolRequest, key string) (*int64, error) {
	args := request.GetArguments()
	if _, ok := args[key]; !ok {
		return nil, nil
	}
	v := int64(request.GetInt(key, 0))
	if v < 1 {
		return nil, fmt.Errorf("%s must be at least 1", key)
	}
	return &v, nil
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the LLM so it can self-correct; they do NOT terminate the MCP
// session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// serviceError turns a gateway error into the message the HTTP API would
// have returned for it.
func serviceError(err error) (*mcp.CallToolResult, error) {
	var (
		forbidden *service.ForbiddenError
		rejected  *budget.RejectedError
		execErr   *payment.ExecutionError
	)
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return toolError("API key is invalid or revoked")
	case errors.As(err, &forbidden):
		return toolError("API key lacks '%s' permission", forbidden.Permission)
	case errors.As(err, &rejected):
		return toolError("%s", rejected.Reason)
	case errors.Is(err, budget.ErrStoreUnavailable):
		return toolError("Store unavailable, retry later")
	case errors.Is(err, payment.ErrAmountUnresolved):
		return toolError("Could not determine payment amount; provide amount_sats")
	case errors.Is(err, wallet.ErrInvalidDestination):
		return toolError("Invalid payment destination")
	case errors.As(err, &execErr):
		return toolError("%s", payment.ExecutionFailedMessage)
	case errors.Is(err, payment.ErrPrepareFailed):
		return toolError("Failed to prepare payment")
	case errors.Is(err, wallet.ErrNotConnected):
		return toolError("Wallet not connected, retry later")
	default:
		return toolError("Internal error: %v", err)
	}
}

// clamp constrains val to [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
