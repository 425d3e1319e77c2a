package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"learnhub.dev/internal/audit"
	"learnhub.dev/internal/obs"
	"learnhub.dev/internal/security"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": audit.RequestIDFromContext(r.Context()),
	})
}

// decodeJSON reads a single JSON object. An empty body decodes to the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body too large")
		}
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// handleSecurityError maps sentinel errors onto status codes. Anything
// unexpected is logged and reported as 500 without detail.
func handleSecurityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, security.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, security.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, security.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		obs.Logger().Error().Err(err).
			Str("request_id", audit.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func outcomeStatus(o security.Outcome) int {
	switch o {
	case security.OutcomeOK:
		return http.StatusOK
	case security.OutcomeDenied:
		return http.StatusForbidden
	case security.OutcomeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}
