package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/typepilot/internal/orchestrator"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeUnauthorized      = "unauthorised"
	ErrCodeForbidden         = "forbidden"
	ErrCodeConflict          = "conflict"
	ErrCodeInternal          = "internal_error"
	ErrCodeValidation        = "validation_error"
	ErrCodeNoText            = "no_text"
	ErrCodeUpstreamTransient = "upstream_transient"
	ErrCodeUpstreamFatal     = "upstream_fatal"
	ErrCodeUnavailable       = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeClassified writes err with the status and code for its kind.
// Internal errors are logged and never echoed to the caller.
func (s *Server) writeClassified(w http.ResponseWriter, r *http.Request, err error) {
	kind := orchestrator.Classify(err)
	status, code := statusForKind(kind)
	if kind == orchestrator.KindInternal {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

// statusForKind maps an error kind onto an HTTP status and error code.
func statusForKind(kind orchestrator.Kind) (int, string) {
	switch kind {
	case orchestrator.KindValidation:
		return http.StatusBadRequest, ErrCodeValidation
	case orchestrator.KindNoText:
		return http.StatusUnprocessableEntity, ErrCodeNoText
	case orchestrator.KindRejected:
		return http.StatusConflict, ErrCodeConflict
	case orchestrator.KindStale:
		return http.StatusNotFound, ErrCodeNotFound
	case orchestrator.KindUpstreamTransient:
		return http.StatusTooManyRequests, ErrCodeUpstreamTransient
	case orchestrator.KindUpstreamFatal:
		return http.StatusBadGateway, ErrCodeUpstreamFatal
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
