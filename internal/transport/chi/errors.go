package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/domain"
)

// ErrorCode is the machine-readable error kind in API responses.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeInvalidQuery     ErrorCode = "invalid_query"
	CodeInvalidViewMode  ErrorCode = "invalid_view_mode"
	CodeUnknownMode      ErrorCode = "unknown_mode"
	CodeResolutionFailed ErrorCode = "resolution_failed"
	CodeSearchFailed     ErrorCode = "search_failed"
	CodeNoActiveSearch   ErrorCode = "no_active_search"
	CodeSuperseded       ErrorCode = "superseded"
	CodeTimeout          ErrorCode = "timeout"
	CodeNotConfigured    ErrorCode = "not_configured"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// sentinels are the errors whose text is safe to show to clients.
var sentinels = []error{
	domain.ErrUnknownMode,
	domain.ErrInvalidQuery,
	domain.ErrInvalidViewMode,
	domain.ErrResolutionFailure,
	domain.ErrSearchDispatchFailure,
	domain.ErrNoActiveSearch,
	domain.ErrSuperseded,
	context.DeadlineExceeded,
}

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		unknownModeHandler,
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeInvalidQuery),
		sentinelHandler(domain.ErrInvalidViewMode, http.StatusBadRequest, CodeInvalidViewMode),
		sentinelHandler(domain.ErrResolutionFailure, http.StatusBadGateway, CodeResolutionFailed),
		sentinelHandler(domain.ErrSearchDispatchFailure, http.StatusBadGateway, CodeSearchFailed),
		sentinelHandler(domain.ErrNoActiveSearch, http.StatusConflict, CodeNoActiveSearch),
		sentinelHandler(domain.ErrSuperseded, http.StatusConflict, CodeSuperseded),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// unknownModeHandler names the offending mode; the token came from the caller.
func unknownModeHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrUnknownMode) {
		return false
	}
	var ume *domain.UnknownModeError
	if errors.As(err, &ume) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"code":    CodeUnknownMode,
			"message": msg,
			"mode":    ume.Mode,
		})
		return true
	}
	writeError(w, http.StatusNotFound, CodeUnknownMode, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
