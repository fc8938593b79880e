package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"collectflow/logging"
	"collectflow/workflow"
)

const defaultRunListLimit = 20

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Timestamp: s.now().UTC()})
}

func (s *Server) handleReady(c echo.Context) error {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request().Context()); err != nil {
			return writeProblem(c, http.StatusServiceUnavailable, "Not ready", "database unreachable")
		}
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ready", Timestamp: s.now().UTC()})
}

func (s *Server) handleListWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalog.Summaries())
}

func (s *Server) handleGetWorkflow(c echo.Context) error {
	def, ok := s.catalog.Get(c.Param("id"))
	if !ok {
		return writeProblem(c, http.StatusNotFound, "Workflow not found", "no workflow with id "+c.Param("id"))
	}
	return c.JSON(http.StatusOK, def)
}

type executeRequest struct {
	WorkflowID string `json:"workflow_id"`
	Resume     bool   `json:"resume"`
}

func (s *Server) handleExecute(c echo.Context) error {
	claims := claimsFrom(c)
	if !claims.Role.CanExecute() {
		return writeProblem(c, http.StatusForbidden, "Forbidden", "role may not execute workflows")
	}

	var body executeRequest
	if err := c.Bind(&body); err != nil {
		return writeProblem(c, http.StatusBadRequest, "Invalid request body", "body must be a JSON object")
	}

	caseID := c.Param("id")
	ctx := logging.WithCaseID(c.Request().Context(), caseID)
	run, err := s.runner.Execute(ctx, workflow.ExecuteRequest{
		CaseID:         caseID,
		WorkflowID:     body.WorkflowID,
		OrganizationID: claims.OrganizationID,
		ActorID:        claims.UserID,
		Resume:         body.Resume,
	})
	if err != nil {
		return s.writeRunError(c, err)
	}
	return c.JSON(http.StatusCreated, run)
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := defaultRunListLimit
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return writeProblem(c, http.StatusBadRequest, "Invalid limit", "limit must be an integer")
	}

	claims := claimsFrom(c)
	runs, err := s.runs.ListRuns(c.Request().Context(), claims.OrganizationID, c.Param("id"), limit)
	if err != nil {
		if errors.Is(err, workflow.ErrCaseNotFound) {
			return writeProblem(c, http.StatusNotFound, "Case not found", err.Error())
		}
		s.logger.ErrorContext(c.Request().Context(), "list runs failed", "error", err)
		return writeProblem(c, http.StatusInternalServerError, "List runs failed", "internal error")
	}
	return c.JSON(http.StatusOK, runs)
}
