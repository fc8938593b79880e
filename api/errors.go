package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"collectflow/workflow"
)

// lockRetryAfter is advertised on 409 responses for locked cases, in seconds.
const lockRetryAfter = "5"

// ProblemDetails represents an RFC 7807 Problem Details response.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

func writeProblem(c echo.Context, status int, title, detail string) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// writeRunError maps runner errors onto HTTP statuses.
func (s *Server) writeRunError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, workflow.ErrCaseNotFound):
		return writeProblem(c, http.StatusNotFound, "Case not found", err.Error())
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		return writeProblem(c, http.StatusNotFound, "Workflow not found", err.Error())
	case errors.Is(err, workflow.ErrCaseLocked):
		c.Response().Header().Set("Retry-After", lockRetryAfter)
		return writeProblem(c, http.StatusConflict, "Case busy", "another workflow run holds this case; retry later")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return writeProblem(c, http.StatusServiceUnavailable, "Run interrupted", err.Error())
	default:
		s.logger.ErrorContext(c.Request().Context(), "workflow run failed", "error", err)
		return writeProblem(c, http.StatusInternalServerError, "Workflow execution failed", "internal error")
	}
}

func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	detail := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(status)
		}
	} else {
		s.logger.ErrorContext(c.Request().Context(), "unhandled error", "error", err)
	}
	if werr := writeProblem(c, status, http.StatusText(status), detail); werr != nil {
		s.logger.ErrorContext(c.Request().Context(), "write error response", "error", werr)
	}
}
