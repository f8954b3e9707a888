package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/glowcloud/glow/internal/budget"
	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/payment"
	"github.com/glowcloud/glow/internal/service"
	"github.com/glowcloud/glow/internal/store"
	"github.com/glowcloud/glow/internal/wallet"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// readJSON decodes the request body into v and validates it. An empty body
// decodes as the zero value, so optional-only payloads may be omitted.
func readJSON(r *http.Request, v interface{}) error {
	if err := decodeJSON(r, v); err != nil {
		return err
	}
	return validate.Struct(v)
}

// decodeJSON reads the body into v without validating it. An empty body
// leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeBodyError reports a readJSON failure.
func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		writeError(w, http.StatusBadRequest, strings.Join(msgs, "; "))
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", fe.Field(), fe.Param(), unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", fe.Field(), fe.Param(), unit)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

// writeServiceError maps errors from the service, budget, payment and wallet
// layers onto the error envelope. Unclassified errors are logged and
// reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		validation *service.ValidationError
		forbidden  *service.ForbiddenError
		rejected   *budget.RejectedError
		execErr    *payment.ExecutionError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Message)
	case errors.Is(err, service.ErrSelfRevoke):
		writeError(w, http.StatusBadRequest, "Cannot revoke your own API key")
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
	case errors.As(err, &forbidden):
		writeError(w, http.StatusForbidden, fmt.Sprintf("API key lacks '%s' permission", forbidden.Permission))
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Key not found or already revoked")
	case errors.As(err, &rejected):
		if rejected.RemainingSats != nil {
			writeError(w, http.StatusForbidden, rejected.Reason,
				map[string]interface{}{"remaining_sats": *rejected.RemainingSats})
			return
		}
		writeError(w, http.StatusForbidden, rejected.Reason)
	case errors.Is(err, budget.ErrStoreUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "Store unavailable, retry later")
	case errors.Is(err, payment.ErrAmountUnresolved):
		writeError(w, http.StatusBadRequest, "Could not determine payment amount; provide amount_sats")
	case errors.Is(err, wallet.ErrInvalidDestination):
		writeError(w, http.StatusBadRequest, "Invalid payment destination")
	case errors.As(err, &execErr):
		writeError(w, http.StatusBadGateway, execErr.Error())
	case errors.Is(err, payment.ErrPrepareFailed):
		writeError(w, http.StatusBadGateway, "Failed to prepare payment")
	case errors.Is(err, wallet.ErrNotConnected):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "Wallet not connected")
	default:
		logger.ErrorContext(r.Context(), "unhandled error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
