package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	"github.com/gatehouse-io/gatehouse/internal/service"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.addTools(
		s.executePlanTool(),
		s.getRunTool(),
		s.listRunsTool(),
		s.listProjectsTool(),
	)
}

func (s *Server) executePlanTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("execute_plan",
		mcplib.WithDescription("Execute an edit plan against a project sandbox and return the terminal outcome"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project to execute against"),
		),
		mcplib.WithString("actor_id",
			mcplib.Required(),
			mcplib.Description("The identity submitting the plan"),
		),
		mcplib.WithString("plan",
			mcplib.Required(),
			mcplib.Description("The plan as a JSON document"),
		),
		mcplib.WithString("plan_hash",
			mcplib.Required(),
			mcplib.Description("SHA-256 over the plan's canonical form, computed by the plan author"),
		),
		mcplib.WithArray("confirmed_protected_paths",
			mcplib.Description("Protected paths the caller has explicitly confirmed"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleExecutePlan,
	}
}

func (s *Server) getRunTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_run",
		mcplib.WithDescription("Get a sandbox run by ID, including its check results"),
		mcplib.WithString("run_id",
			mcplib.Required(),
			mcplib.Description("The run ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetRun,
	}
}

func (s *Server) listRunsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_runs",
		mcplib.WithDescription("List sandbox runs for a project, newest first"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project whose runs to list"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListRuns,
	}
}

func (s *Server) listProjectsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_projects",
		mcplib.WithDescription("List all projects"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListProjects,
	}
}

func (s *Server) handleExecutePlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Executor == nil {
		return mcplib.NewToolResultError("executor not configured"), nil
	}
	args := req.GetArguments()
	projectID, _ := args["project_id"].(string)
	actorID, _ := args["actor_id"].(string)
	planJSON, _ := args["plan"].(string)
	planHash, _ := args["plan_hash"].(string)
	if projectID == "" || actorID == "" || planJSON == "" || planHash == "" {
		return mcplib.NewToolResultError("project_id, actor_id, plan and plan_hash are required"), nil
	}

	var p plan.Plan
	if err := json.Unmarshal([]byte(planJSON), &p); err != nil {
		return mcplib.NewToolResultErrorFromErr("plan is not valid JSON", err), nil
	}

	var confirmed []string
	if raw, ok := args["confirmed_protected_paths"].([]any); ok {
		for _, v := range raw {
			if path, ok := v.(string); ok {
				confirmed = append(confirmed, path)
			}
		}
	}

	outcome, err := s.deps.Executor.Execute(ctx, service.ExecuteRequest{
		ProjectID:               projectID,
		ActorID:                 actorID,
		Plan:                    &p,
		PlanHash:                planHash,
		ConfirmedProtectedPaths: confirmed,
	})
	if err != nil {
		var protected *service.ProtectedPathsError
		if errors.As(err, &protected) {
			data, merr := json.Marshal(map[string]any{
				"need_protected_confirmation": true,
				"protected_paths":             protected.Paths,
			})
			if merr != nil {
				return mcplib.NewToolResultErrorFromErr("failed to marshal confirmation request", merr), nil
			}
			return toolResultJSON(string(data)), nil
		}
		return mcplib.NewToolResultErrorFromErr("execution refused", err), nil
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal outcome", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetRun(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run reader not configured"), nil
	}
	args := req.GetArguments()
	runID, ok := args["run_id"].(string)
	if !ok || runID == "" {
		return mcplib.NewToolResultError("run_id is required"), nil
	}
	r, err := s.deps.Runs.GetRun(ctx, runID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get run %s", runID), err,
		), nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal run", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListRuns(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run reader not configured"), nil
	}
	args := req.GetArguments()
	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	runs, err := s.deps.Runs.ListRunsByProject(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to list runs for project %s", projectID), err,
		), nil
	}
	data, err := json.Marshal(runs)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal runs", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListProjects(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Projects == nil {
		return mcplib.NewToolResultError("project reader not configured"), nil
	}
	projects, err := s.deps.Projects.ListProjects(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list projects", err), nil
	}
	data, err := json.Marshal(projects)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal projects", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}
