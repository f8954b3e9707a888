package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/glowcloud/glow/internal/budget"
	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/server/middleware"
	"github.com/glowcloud/glow/internal/service"
)

// KeyHandler manages API keys. Every route requires the admin permission;
// keys created here can never carry admin themselves.
type KeyHandler struct {
	keys   *service.KeyService
	ledger *budget.Ledger
	logger *slog.Logger
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keys *service.KeyService, ledger *budget.Ledger, logger *slog.Logger) *KeyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyHandler{keys: keys, ledger: ledger, logger: logger}
}

type createKeyRequest struct {
	Name          string   `json:"name" validate:"required,max=100"`
	Permissions   []string `json:"permissions"`
	BudgetSats    *int64   `json:"budget_sats" validate:"omitempty,min=1"`
	BudgetPeriod  *string  `json:"budget_period" validate:"omitempty,oneof=daily weekly monthly"`
	MaxAmountSats *int64   `json:"max_amount_sats" validate:"omitempty,min=1"`
}

// Create mints a key and returns its raw secret. This is the only time the
// secret is visible.
// POST /keys
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	// Escalation attempts are named before any other field problem.
	if err := service.CheckSelfService(req.Permissions); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	raw, key, err := h.keys.Create(r.Context(), service.CreateKeyParams{
		Name:          req.Name,
		Permissions:   req.Permissions,
		MaxAmountSats: req.MaxAmountSats,
		BudgetSats:    req.BudgetSats,
		BudgetPeriod:  req.BudgetPeriod,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "api key created",
		"id", key.ID, "name", key.Name, "by", middleware.GetAPIKey(r.Context()).ID)
	writeJSON(w, http.StatusCreated, model.CreateKeyResponse{
		Key:           raw,
		ID:            key.ID,
		Name:          key.Name,
		Permissions:   []string(key.Permissions),
		BudgetSats:    key.BudgetSats,
		BudgetPeriod:  key.BudgetPeriod,
		MaxAmountSats: key.MaxAmountSats,
		CreatedAt:     key.CreatedAt,
	})
}

// List returns active keys with their current-period usage.
// GET /keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]model.KeyView, 0, len(keys))
	for i := range keys {
		view := model.KeyViewFrom(&keys[i])
		if keys[i].HasBudget() {
			st, err := h.ledger.Status(r.Context(), &keys[i])
			if err != nil {
				writeServiceError(w, r, h.logger, err)
				return
			}
			spent := st.SpentSats
			view.SpentSats = &spent
			view.RemainingSats = st.RemainingSats
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

// Revoke deactivates a key. A key cannot revoke itself.
// DELETE /keys/{id}
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := middleware.GetAPIKey(r.Context())

	if err := h.keys.Revoke(r.Context(), id, caller.ID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "api key revoked", "id", id, "by", caller.ID)
	writeJSON(w, http.StatusOK, model.DetailResponse{Detail: "Key revoked"})
}
