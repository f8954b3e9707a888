package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	gmcp "github.com/glowcloud/glow/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		key       string
		transport string
		addr      string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes the wallet as tools
for AI agents. Every tool call acts as the API key given with --api-key (or
GLOW_MCP_API_KEY), so the agent inherits that key's permissions, per-payment
maximum and budget.

In stdio mode the server speaks JSON-RPC over stdin/stdout, suitable for
desktop MCP clients. In http mode it serves the streamable HTTP transport.`,
		Example: `  glow mcp --api-key glow_xxx                         # stdio
  glow mcp --api-key glow_xxx --transport http --addr :8081`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("GLOW_MCP_API_KEY")
			}
			return runMCP(key, transport, addr)
		},
	}

	cmd.Flags().StringVar(&key, "api-key", "", "API key the agent acts as")
	cmd.Flags().StringVar(&transport, "transport", "", "Transport mode: stdio or http (default from mcp.transport)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from mcp.addr)")

	return cmd
}

func runMCP(key, transport, addr string) error {
	if key == "" {
		return fmt.Errorf("an API key is required (--api-key or GLOW_MCP_API_KEY)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if transport == "" {
		transport = cfg.MCP.Transport
	}
	if addr == "" {
		addr = cfg.MCP.Addr
	}

	// stdout carries the protocol in stdio mode.
	logger := newLogger(cfg.Log, false, os.Stderr)

	gw, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer gw.Close()

	// Fail fast on a bad key instead of on the agent's first call.
	if _, err := gw.auth.Resolve(context.Background(), key); err != nil {
		return fmt.Errorf("resolve API key: %w", err)
	}

	srv := gmcp.NewMCPServer(gmcp.Deps{
		Auth:         gw.auth,
		Ledger:       gw.ledger,
		Orchestrator: gw.orchestrator,
	}, key, versionString(), logger)

	switch transport {
	case "stdio":
		return srv.ServeStdio()
	case "http":
		return srv.ServeHTTP(addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
