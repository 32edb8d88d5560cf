package web

// errors.go provides unified error responses for the web layer.
//
// Every handler error goes through respondError, which:
//  1. Maps the error to a core.Notice (title, description, code)
//  2. Logs the technical error with the request ID for correlation
//  3. Writes the notice as JSON for API routes or as an HTML page otherwise
//
// statusFor picks the HTTP status from the error kind unless the caller
// already knows it.

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/logging"
	"github.com/JonMunkholm/loglens/internal/store"
	"github.com/JonMunkholm/loglens/internal/upload"
	"github.com/JonMunkholm/loglens/internal/web/templates"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// respondError logs err and writes the user notice for it. A zero status
// is derived from the error with statusFor.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	notice := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", notice.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if wantsJSON(r) {
		writeJSON(w, status, ErrorResponse{
			Error:       notice.Title,
			Description: notice.Description,
			Code:        notice.Code,
		})
		return
	}
	renderHTML(w, r, status, templates.ErrorPage(notice))
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, upload.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	}

	switch core.KindOf(err) {
	case core.KindValidation:
		if strings.Contains(err.Error(), "busy") {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case core.KindDecode, core.KindPayload:
		return http.StatusUnprocessableEntity
	case core.KindSubmission:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
