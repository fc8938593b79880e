package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"collectflow/auth"
	"collectflow/logging"
	"collectflow/workflow"
)

const (
	toolExecuteWorkflow = "execute_workflow"
	toolListWorkflows   = "list_workflows"
	toolGetWorkflow     = "get_workflow"
)

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: listWorkflowsTool(), Handler: s.handleListWorkflows},
		{Tool: getWorkflowTool(), Handler: s.handleGetWorkflow},
		{Tool: executeWorkflowTool(), Handler: s.handleExecuteWorkflow},
	}
}

func listWorkflowsTool() mcp.Tool {
	return mcp.NewTool(toolListWorkflows,
		mcp.WithDescription("List the workflow definitions in the catalog with their settings and step counts."),
	)
}

func getWorkflowTool() mcp.Tool {
	return mcp.NewTool(toolGetWorkflow,
		mcp.WithDescription("Return one workflow definition including every step, its conditions and its config."),
		mcp.WithString("workflow_id",
			mcp.Required(),
			mcp.Description("Catalog id, e.g. standard_collection"),
		),
	)
}

func executeWorkflowTool() mcp.Tool {
	return mcp.NewTool(toolExecuteWorkflow,
		mcp.WithDescription("Run a collection workflow against a case. Without workflow_id the workflow is chosen from the case's age and priority."),
		mcp.WithString("case_id",
			mcp.Required(),
			mcp.Description("Collection case id"),
		),
		mcp.WithString("workflow_id",
			mcp.Description("Catalog id to force instead of automatic selection"),
		),
		mcp.WithBoolean("resume",
			mcp.Description("Skip steps that already completed successfully for this case and workflow"),
		),
	)
}

func (s *Server) handleListWorkflows(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(s.catalog.Summaries())
}

func (s *Server) handleGetWorkflow(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	def, ok := s.catalog.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("workflow %q not found", id)), nil
	}
	return marshalResult(def)
}

func (s *Server) handleExecuteWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	claims, ok := auth.FromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("unauthenticated"), nil
	}
	if !claims.Role.CanExecute() {
		return mcp.NewToolResultError(fmt.Sprintf("role %q may not execute workflows", claims.Role)), nil
	}

	caseID, err := req.RequireString("case_id")
	if err != nil {
		return mcp.NewToolResultError("case_id is required"), nil
	}

	ctx = logging.WithCaseID(ctx, caseID)
	run, err := s.runner.Execute(ctx, workflow.ExecuteRequest{
		CaseID:         caseID,
		WorkflowID:     req.GetString("workflow_id", ""),
		OrganizationID: claims.OrganizationID,
		ActorID:        claims.UserID,
		Resume:         req.GetBool("resume", false),
	})
	if err != nil {
		return s.runError(ctx, caseID, err), nil
	}

	s.logger.InfoContext(ctx, "mcp workflow run finished",
		"run_id", run.ID, "workflow_id", run.WorkflowID, "status", run.Status)
	return marshalResult(run)
}

func (s *Server) runError(ctx context.Context, caseID string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, workflow.ErrCaseNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("case %q not found", caseID))
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, workflow.ErrCaseLocked):
		return mcp.NewToolResultError(fmt.Sprintf("case %q already has a run in progress, retry later", caseID))
	default:
		s.logger.ErrorContext(ctx, "mcp workflow run failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("workflow run failed: %v", err))
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
