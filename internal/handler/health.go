package handler

import (
	"net/http"
	"time"

	"github.com/glowcloud/glow/internal/model"
)

// ConnectionState reports whether the wallet session is up without
// blocking on a connect.
type ConnectionState interface {
	Connected() bool
}

// Health is the unauthenticated liveness probe. It reports whether the
// wallet has been initialized but never triggers a connect.
// GET /health
func Health(wallet ConnectionState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.HealthResponse{
			Status:          "ok",
			WalletConnected: wallet != nil && wallet.Connected(),
			Timestamp:       time.Now().UTC(),
		})
	}
}
