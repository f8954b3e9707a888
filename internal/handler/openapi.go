package handler

import (
	"net/http"

	"github.com/glowcloud/glow/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI document for the gateway.
type OpenAPIHandler struct {
	opts openapi.Options
}

// NewOpenAPIHandler creates a new OpenAPIHandler. When opts.BaseURL is empty
// the server URL is derived from each request.
func NewOpenAPIHandler(opts openapi.Options) *OpenAPIHandler {
	return &OpenAPIHandler{opts: opts}
}

// ServeSpec returns the OpenAPI document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	opts := h.opts
	if opts.BaseURL == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		opts.BaseURL = scheme + "://" + r.Host
	}
	writeJSON(w, http.StatusOK, openapi.Generate(opts))
}
