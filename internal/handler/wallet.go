package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/glowcloud/glow/internal/budget"
	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/payment"
	"github.com/glowcloud/glow/internal/server/middleware"
	"github.com/glowcloud/glow/internal/wallet"
)

const (
	defaultPaymentsLimit = 20
	maxPaymentsLimit     = 100
)

// Reconnector re-establishes the wallet session.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// WalletHandler serves the wallet operations: balance, history, invoices
// and budget-checked sends.
type WalletHandler struct {
	orch      *payment.Orchestrator
	ledger    *budget.Ledger
	reconnect Reconnector
	logger    *slog.Logger
}

// NewWalletHandler creates a new WalletHandler. reconnect may be nil, in
// which case POST /sync only refreshes the balance.
func NewWalletHandler(orch *payment.Orchestrator, ledger *budget.Ledger, reconnect Reconnector, logger *slog.Logger) *WalletHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletHandler{orch: orch, ledger: ledger, reconnect: reconnect, logger: logger}
}

type receiveRequest struct {
	AmountSats  *int64 `json:"amount_sats" validate:"omitempty,min=1"`
	Description string `json:"description" validate:"max=639"`
}

type sendRequest struct {
	Destination string `json:"destination" validate:"required,min=1,max=2000"`
	AmountSats  *int64 `json:"amount_sats" validate:"omitempty,min=1"`
}

// Balance returns the wallet balance snapshot.
// GET /balance
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	info, err := h.orch.Balance(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse(info))
}

// Payments lists wallet history.
// GET /payments?offset=0&limit=20
func (h *WalletHandler) Payments(w http.ResponseWriter, r *http.Request) {
	offset := max(0, queryInt(r, "offset", 0))
	limit := clampInt(queryInt(r, "limit", defaultPaymentsLimit), 1, maxPaymentsLimit)

	payments, err := h.orch.Payments(r.Context(), offset, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := model.PaymentsResponse{Payments: make([]model.PaymentView, 0, len(payments))}
	for _, p := range payments {
		out.Payments = append(out.Payments, model.PaymentView{
			ID:          p.ID,
			Direction:   p.Direction,
			Status:      p.Status,
			AmountSats:  p.AmountSats,
			FeeSats:     p.FeeSats,
			Description: p.Description,
			CreatedAt:   p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Receive creates an invoice. Receiving never touches the budget.
// POST /receive
func (h *WalletHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := readJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	inv, err := h.orch.Receive(r.Context(), wallet.ReceiveRequest{
		AmountSats:  req.AmountSats,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ReceiveResponse{
		PaymentRequest: inv.PaymentRequest,
		FeeSats:        inv.FeeSats,
	})
}

// Send pays a destination on behalf of the calling key, subject to its
// per-transaction limit and budget.
// POST /send
func (h *WalletHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := readJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	key := middleware.GetAPIKey(r.Context())
	res, err := h.orch.Send(r.Context(), key, payment.SendRequest{
		Destination: req.Destination,
		AmountSats:  req.AmountSats,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SendResponse{
		PaymentID:  res.PaymentID,
		AmountSats: res.AmountSats,
		Status:     res.Status,
	})
}

// Budget reports the calling key's limits and its spend this period.
// GET /budget
func (h *WalletHandler) Budget(w http.ResponseWriter, r *http.Request) {
	st, err := h.ledger.Status(r.Context(), middleware.GetAPIKey(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Sync reconnects the wallet and returns the fresh balance.
// POST /sync
func (h *WalletHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.reconnect != nil {
		if err := h.reconnect.Reconnect(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "wallet reconnect failed", "error", err)
			writeServiceError(w, r, h.logger, err)
			return
		}
	}
	h.Balance(w, r)
}

func balanceResponse(info *wallet.Info) model.BalanceResponse {
	return model.BalanceResponse{
		BalanceSats:         info.BalanceSats,
		PendingIncomingSats: info.PendingIncomingSats,
		PendingOutgoingSats: info.PendingOutgoingSats,
		MaxPayableSats:      info.MaxPayableSats,
		MaxReceivableSats:   info.MaxReceivableSats,
	}
}
