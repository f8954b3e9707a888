package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/payment"
	"github.com/glowcloud/glow/internal/wallet"
)

// registerTools registers all wallet tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Read tools -----

	srv.AddTool(
		mcp.NewTool("glow_balance",
			mcp.WithDescription(
				"Get the wallet balance in satoshis, including pending incoming and "+
					"outgoing amounts and the current maximum payable and receivable amounts.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleBalance,
	)

	srv.AddTool(
		mcp.NewTool("glow_list_payments",
			mcp.WithDescription(
				"List wallet payment history, newest first. Each entry has the payment id, "+
					"direction (send or receive), status, amount and fee in satoshis.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of payments to return (default 20, max 100)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of payments to skip for pagination"),
			),
		),
		s.handleListPayments,
	)

	srv.AddTool(
		mcp.NewTool("glow_budget",
			mcp.WithDescription(
				"Show the spending limits of this API key: the per-payment maximum, the "+
					"budget and its period, and how much is spent and remaining in the "+
					"current period. Check this before sending.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleBudget,
	)

	// ----- Payment tools -----

	srv.AddTool(
		mcp.NewTool("glow_receive",
			mcp.WithDescription(
				"Create a BOLT11 Lightning invoice that others can pay to fund the wallet. "+
					"Omit amount_sats for an any-amount invoice.",
			),
			mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(false)}),
			mcp.WithNumber("amount_sats",
				mcp.Description("Invoice amount in satoshis"),
				mcp.Min(1),
			),
			mcp.WithString("description",
				mcp.Description("Description embedded in the invoice"),
				mcp.MaxLength(639),
			),
		),
		s.handleReceive,
	)

	srv.AddTool(
		mcp.NewTool("glow_send",
			mcp.WithDescription(
				"Pay a Lightning invoice, Lightning address or LNURL. The amount counts "+
					"against this key's budget. If the payment fails the budget is released, "+
					"but verify payment status with glow_list_payments before retrying.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("destination",
				mcp.Required(),
				mcp.Description("BOLT11 invoice, Lightning address or LNURL"),
				mcp.MaxLength(2000),
			),
			mcp.WithNumber("amount_sats",
				mcp.Description("Amount in satoshis. Required when the destination does not encode one."),
				mcp.Min(1),
			),
		),
		s.handleSend,
	)
}

// authorize resolves the bound key and checks perm. An empty perm only
// requires the key to be active.
func (s *MCPServer) authorize(ctx context.Context, perm model.Permission) (*model.APIKey, error) {
	if perm == "" {
		return s.deps.Auth.Resolve(ctx, s.rawKey)
	}
	return s.deps.Auth.Authorize(ctx, s.rawKey, perm)
}

// --------------------------------------------------------------------------
// Tool handlers
// --------------------------------------------------------------------------

func (s *MCPServer) handleBalance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.authorize(ctx, model.PermBalance); err != nil {
		return serviceError(err)
	}

	info, err := s.deps.Orchestrator.Balance(ctx)
	if err != nil {
		return serviceError(err)
	}
	return successJSON(model.BalanceResponse{
		BalanceSats:         info.BalanceSats,
		PendingIncomingSats: info.PendingIncomingSats,
		PendingOutgoingSats: info.PendingOutgoingSats,
		MaxPayableSats:      info.MaxPayableSats,
		MaxReceivableSats:   info.MaxReceivableSats,
	})
}

func (s *MCPServer) handleListPayments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.authorize(ctx, model.PermBalance); err != nil {
		return serviceError(err)
	}

	limit := clamp(optionalInt(request, "limit", 20), 1, 100)
	offset := optionalInt(request, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	payments, err := s.deps.Orchestrator.Payments(ctx, offset, limit)
	if err != nil {
		return serviceError(err)
	}
	views := make([]model.PaymentView, len(payments))
	for i, p := range payments {
		views[i] = model.PaymentView(p)
	}
	return successJSON(model.PaymentsResponse{Payments: views})
}

func (s *MCPServer) handleBudget(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := s.authorize(ctx, "")
	if err != nil {
		return serviceError(err)
	}

	status, err := s.deps.Ledger.Status(ctx, key)
	if err != nil {
		return serviceError(err)
	}
	return successJSON(status)
}

func (s *MCPServer) handleReceive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.authorize(ctx, model.PermReceive); err != nil {
		return serviceError(err)
	}

	amount, err := optionalSats(request, "amount_sats")
	if err != nil {
		return toolError("%v", err)
	}
	description := optionalString(request, "description")
	if len(description) > 639 {
		return toolError("description must be at most 639 characters")
	}

	inv, err := s.deps.Orchestrator.Receive(ctx, wallet.ReceiveRequest{
		AmountSats:  amount,
		Description: description,
	})
	if err != nil {
		return serviceError(err)
	}
	return successJSON(model.ReceiveResponse{
		PaymentRequest: inv.PaymentRequest,
		FeeSats:        inv.FeeSats,
	})
}

func (s *MCPServer) handleSend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := s.authorize(ctx, model.PermSend)
	if err != nil {
		return serviceError(err)
	}

	destination, err := requireString(request, "destination")
	if err != nil {
		return toolError("%v", err)
	}
	if len(destination) > 2000 {
		return toolError("destination must be at most 2000 characters")
	}
	amount, err := optionalSats(request, "amount_sats")
	if err != nil {
		return toolError("%v", err)
	}

	res, err := s.deps.Orchestrator.Send(ctx, key, payment.SendRequest{
		Destination: destination,
		AmountSats:  amount,
	})
	if err != nil {
		s.logger.Warn("mcp send failed", "api_key_id", key.ID, "error", err)
		return serviceError(err)
	}
	return successJSON(model.SendResponse{
		PaymentID:  res.PaymentID,
		AmountSats: res.AmountSats,
		Status:     res.Status,
	})
}
