package web

// errors.go renders every failure as an ErrorResponse. The technical error
// is logged with the request ID; the client gets the mapped message, the
// action to take and the support code from core.MapError.

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/poflow/internal/core"
	"github.com/JonMunkholm/poflow/internal/logging"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errBadRequest  = errors.New("malformed request body")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Action  string            `json:"action,omitempty"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// statusFor picks the HTTP status of err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrWorkflowNotFound),
		errors.Is(err, core.ErrSourceMissing):
		return http.StatusNotFound
	case errors.Is(err, core.ErrVendorExists),
		errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrWorkflowFinished),
		errors.Is(err, core.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, core.ErrSessionInvalid),
		errors.Is(err, core.ErrIncompleteCreation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyUploads),
		errors.Is(err, core.ErrRegistryUnavailable),
		errors.Is(err, core.ErrPDFDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrUnsupportedFile),
		errors.Is(err, core.ErrVendorNameRequired),
		errors.Is(err, core.ErrInvalidVendorType),
		errors.Is(err, core.ErrInvalidVendorInput),
		errors.Is(err, core.ErrUnknownMethod),
		errors.Is(err, core.ErrUnknownPipelineRef),
		errors.Is(err, core.ErrUnknownPDFKind):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError maps err to a status and writes the error response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondStatus(w, r, err, statusFor(err))
}

// respondStatus logs err and writes it with an explicit status.
func respondStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	if errors.Is(err, core.ErrTooManyUploads) {
		w.Header().Set("Retry-After", strconv.Itoa(30))
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var ce *core.CreationError
	if errors.As(err, &ce) {
		resp.Fields = ce.Fields
	}
	writeJSON(w, status, resp)
}
