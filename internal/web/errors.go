package web

// errors.go provides unified error response handling for the web layer.
//
// Handlers call respondError with the technical error. The error is mapped
// via core.MapError to a user-facing message with a support code, logged
// with the request id for correlation, and returned as JSON.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/visitaudit/internal/core"
	"github.com/JonMunkholm/visitaudit/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	Sheets  []string `json:"sheets,omitempty"` // Available sheets for SHEET001
}

// respondError logs err and writes its user-facing form. A zero
// statusCode derives the status from the error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)
	if statusCode == 0 {
		statusCode = statusFor(err, userMsg)
	}

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	var notFound *core.SheetNotFoundError
	if errors.As(err, &notFound) {
		resp.Sheets = notFound.Available
	}
	writeJSON(w, statusCode, resp)
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error, msg core.UserMessage) int {
	switch {
	case errors.Is(err, core.ErrTooManyPasses):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSheetNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	switch msg.Code {
	case "TASK001":
		return http.StatusNotFound
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "TASK002", "ERR000":
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}
