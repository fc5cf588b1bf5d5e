package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/alem-hub/palms-core/internal/domain/identity"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/internal/interface/http/handlers"
	"github.com/alem-hub/palms-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Page      int       `json:"page,omitempty"`
	PageSize  int       `json:"page_size,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writePage(w http.ResponseWriter, r *http.Request, data any, page, pageSize int) {
	writeEnvelope(w, http.StatusOK, JSONResponse{
		Success:   true,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Page: page, PageSize: pageSize},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeEnvelope(w, status, JSONResponse{
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// errorStatus maps the domain error taxonomy onto HTTP.
func errorStatus(err error) (int, string) {
	switch {
	case shared.IsPermissionDenied(err):
		return http.StatusForbidden, "permission_denied"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsInvalidState(err):
		return http.StatusConflict, "invalid_state_transition"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case shared.IsValidation(err):
		return http.StatusUnprocessableEntity, "validation_failure"
	case shared.IsConsistency(err):
		return http.StatusInternalServerError, "consistency_violation"
	case shared.IsExternalService(err):
		return http.StatusBadGateway, "external_service_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := errorStatus(err)
	message := shared.UserMessage(err, http.StatusText(status))
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			logger.Operation(op),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Err(err),
		)
		// детали внутренних ошибок наружу не отдаём
		if code == "internal_error" {
			message = "An unexpected error occurred"
		}
	}
	writeJSONError(w, r, status, code, message)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes an optional JSON body. An empty body leaves v unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return true
	case handlers.IsBodyTooLarge(err):
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
	default:
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
	}
	return false
}

// currentUser returns the authenticated user set by BearerAuth.
func currentUser(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	u, ok := identity.CurrentUser(r.Context())
	if !ok {
		writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return identity.User{}, false
	}
	return *u, true
}

// queryInt reads a non-negative integer parameter; missing or malformed
// values yield def.
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
