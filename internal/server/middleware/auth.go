package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/service"
	"github.com/glowcloud/glow/internal/store"
)

type contextKeyAuth string

// APIKeyContextKey is the context key for the authenticated API key.
const APIKeyContextKey contextKeyAuth = "api_key"

// KeyResolver maps a raw credential to an active key.
type KeyResolver interface {
	Resolve(ctx context.Context, rawKey string) (*model.APIKey, error)
}

// Authenticate returns an HTTP middleware that resolves the credential in
// header. On success the key is attached to the request context; a missing
// or unknown credential gets a 401 JSON error response.
func Authenticate(resolver KeyResolver, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(header)
			if raw == "" {
				writeAuthError(w, http.StatusUnauthorized, "Invalid or missing API key")
				return
			}

			key, err := resolver.Resolve(r.Context(), raw)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					writeAuthError(w, http.StatusUnauthorized, "Invalid or missing API key")
					return
				}
				if errors.Is(err, store.ErrUnavailable) {
					w.Header().Set("Retry-After", "1")
				}
				writeAuthError(w, http.StatusServiceUnavailable, "Credential store unavailable")
				return
			}

			setLogKeyID(r.Context(), key.ID)
			ctx := context.WithValue(r.Context(), APIKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission returns an HTTP middleware that enforces perm on the
// authenticated key. It must be used after Authenticate in the chain.
func RequirePermission(perm model.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetAPIKey(r.Context())
			if key == nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid or missing API key")
				return
			}
			if err := service.Check(key, perm); err != nil {
				writeAuthError(w, http.StatusForbidden, "API key lacks '"+string(perm)+"' permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetAPIKey extracts the authenticated key from the context. Returns nil
// for unauthenticated requests.
func GetAPIKey(ctx context.Context) *model.APIKey {
	if k, ok := ctx.Value(APIKeyContextKey).(*model.APIKey); ok {
		return k
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{ //nolint:errcheck
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
