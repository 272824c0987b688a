package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chainguard/internal/dashboard"
	"chainguard/internal/rules"
)

// APIError represents a structured API error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes returned by the API.
const (
	CodeInvalidID      = "INVALID_ID"
	CodeInvalidQuery   = "INVALID_QUERY"
	CodeRecordNotFound = "RECORD_NOT_FOUND"
	CodeRuleNotFound   = "RULE_NOT_FOUND"
	CodeUnavailable    = "UNAVAILABLE"
	CodeInternal       = "INTERNAL_ERROR"
)

func writeJSONError(w http.ResponseWriter, status int, code, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
		Details: details,
	}); err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeEngineError maps engine errors onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dashboard.ErrRecordNotFound):
		writeJSONError(w, http.StatusNotFound, CodeRecordNotFound, "record not found", err.Error())
	case errors.Is(err, rules.ErrRuleNotFound):
		writeJSONError(w, http.StatusNotFound, CodeRuleNotFound, "rule not found", err.Error())
	case errors.Is(err, dashboard.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusServiceUnavailable, CodeUnavailable, "dashboard engine unavailable", "")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, CodeInternal, "internal server error", "")
	}
}
