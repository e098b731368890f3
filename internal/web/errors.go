package web

import (
	"errors"
	"net/http"

	"github.com/benjaminschreck/go-mailmerge/internal/job"
	"github.com/benjaminschreck/go-mailmerge/internal/logging"
	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error  string                      `json:"error"`
	Code   string                      `json:"code"`
	Issues []mailmerge.ValidationIssue `json:"issues,omitempty"`
}

// classify maps an error to a status code and a machine-readable code.
func classify(err error) (int, string) {
	var verr *mailmerge.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, job.ErrJobNotFound):
		return http.StatusNotFound, "job_not_found"
	case errors.Is(err, job.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, job.ErrShuttingDown):
		return http.StatusServiceUnavailable, "shutting_down"
	case mailmerge.IsDocumentError(err):
		return http.StatusBadRequest, "unreadable_file"
	}
	return http.StatusInternalServerError, "internal"
}

// respondError logs err and writes it as JSON. Internal errors are not
// echoed to the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	logger := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	)

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var verr *mailmerge.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "the request is invalid"
		resp.Issues = verr.Issues
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request error")
		if code == "internal" {
			resp.Error = "internal server error"
		}
	} else {
		logger.Warn("request rejected")
	}
	writeJSON(w, status, resp)
}
