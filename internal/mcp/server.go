// Package mcp exposes the prompt library and workflow editor as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"promptlab/internal/auth"
	"promptlab/internal/services"
	"promptlab/pkg/models"
)

type Server struct {
	mcpServer *server.MCPServer
	workflows services.Workflows
	prompts   services.Prompts
}

func NewServer(workflows services.Workflows, prompts services.Prompts, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Prompt Lab",
			version,
			server.WithToolCapabilities(true),
		),
		workflows: workflows,
		prompts:   prompts,
	}

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	version := mcp.WithNumber("expected_version",
		mcp.Description("Workflow version the change is based on; the call fails if the workflow has moved on"))

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List your workflows, newest first"),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Get a workflow with its ordered steps"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"create_workflow",
			mcp.WithDescription("Create an empty workflow"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
			mcp.WithString("description", mcp.Description("Optional description")),
		),
		s.handleCreateWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"append_step",
			mcp.WithDescription("Append a step to the end of a workflow. Set exactly one of prompt_id or custom_prompt"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithString("prompt_id", mcp.Description("A saved prompt to run at this step")),
			mcp.WithString("custom_prompt", mcp.Description("Inline prompt text")),
			mcp.WithString("notes", mcp.Description("Free-form notes")),
			version,
		),
		s.handleAppendStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"remove_step",
			mcp.WithDescription("Remove a step; later steps move up to close the gap"),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("The ID of the step")),
			version,
		),
		s.handleRemoveStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"reorder_steps",
			mcp.WithDescription("Put every step of a workflow in the given order"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithArray("step_ids", mcp.Required(),
				mcp.Description("Every step ID of the workflow exactly once, first to last"),
				mcp.Items(map[string]any{"type": "string"})),
			version,
		),
		s.handleReorderSteps,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"move_step",
			mcp.WithDescription("Move a step one position up or down. Moving past either end changes nothing"),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("The ID of the step")),
			mcp.WithString("direction", mcp.Required(), mcp.Enum("up", "down")),
			version,
		),
		s.handleMoveStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"search_prompts",
			mcp.WithDescription("List your prompts, optionally filtered by text, tag or pin state"),
			mcp.WithString("query", mcp.Description("Case-insensitive text matched against title and content")),
			mcp.WithString("tag_id", mcp.Description("Only prompts carrying this tag")),
			mcp.WithBoolean("pinned", mcp.Description("Only pinned prompts")),
		),
		s.handleSearchPrompts,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"pin_prompt",
			mcp.WithDescription("Pin or unpin a prompt"),
			mcp.WithString("prompt_id", mcp.Required(), mcp.Description("The ID of the prompt")),
			mcp.WithBoolean("pinned", mcp.DefaultBool(true), mcp.Description("false unpins")),
		),
		s.handlePinPrompt,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return unauthenticated(), nil
	}
	workflows, err := s.workflows.List(ctx, owner)
	if err != nil {
		return toolError("list workflows", err), nil
	}
	return jsonResult(workflows)
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return unauthenticated(), nil
	}
	id, err := request.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	w, err := s.workflows.Get(ctx, owner, id)
	if err != nil {
		return toolError("get workflow", err), nil
	}
	return jsonResult(w)
}

func (s *Server) handleCreateWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return unauthenticated(), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := models.WorkflowInput{Name: name, Description: optionalString(request, "description")}
	w, err := s.workflows.Create(ctx, owner, in)
	if err != nil {
		return toolError("create workflow", err), nil
	}
	return jsonResult(w)
}

func (s *Server) handleAppendStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return unauthenticated(), nil
	}
	workflowID, err := request.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := models.StepInput{
		PromptID:     optionalString(request, "prompt_id"),
		CustomPrompt: optionalString(request, "custom_prompt"),
		Notes:        optionalString(request, "notes"),
	}
	version, err := expectedVersion(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.workflows.AppendStep(ctx, owner, workflowID, in, version)
	if err != nil {
		return toolError("append step", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleRemoveStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return unauthenticated(), nil
	}
	stepID, err := request.RequireString("step_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version, err := expectedVersion(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.workflows.RemoveStep(ctx, owner, stepID, version)
	if err != nil {
		return toolError("remove step", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleReorderSteps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return unauthenticated(), nil
	}
	workflowID, err := request.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stepIDs, err := request.RequireStringSlice("step_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version, err := expectedVersion(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.workflows.ReorderSteps(ctx, owner, workflowID, stepIDs, version)
	if err != nil {
		return toolError("reorder steps", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleMoveStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return unauthenticated(), nil
	}
	stepID, err := request.RequireString("step_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := request.RequireString("direction")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dir, err := models.ParseDirection(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version, err := expectedVersion(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.workflows.MoveStep(ctx, owner, stepID, dir, version)
	if err != nil {
		return toolError("move step", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleSearchPrompts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return unauthenticated(), nil
	}
	filter := models.PromptFilter{
		Query:      request.GetString("query", ""),
		TagID:      request.GetString("tag_id", ""),
		PinnedOnly: request.GetBool("pinned", false),
	}
	prompts, err := s.prompts.List(ctx, owner, filter)
	if err != nil {
		return toolError("search prompts", err), nil
	}
	return jsonResult(prompts)
}

func (s *Server) handlePinPrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return unauthenticated(), nil
	}
	promptID, err := request.RequireString("prompt_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var p *models.PromptWithTags
	if request.GetBool("pinned", true) {
		p, err = s.prompts.Pin(ctx, owner, promptID)
	} else {
		p, err = s.prompts.Unpin(ctx, owner, promptID)
	}
	if err != nil {
		return toolError("pin prompt", err), nil
	}
	return jsonResult(p)
}

// Handler serves the SSE transport under basePath (basePath+"/sse" and
// basePath+"/message"). Requests must already carry the caller's user id.
func (s *Server) Handler(basePath string) http.Handler {
	return server.NewSSEServer(s.mcpServer,
		server.WithStaticBasePath(basePath),
		server.WithSSEContextFunc(withCaller),
	)
}

// withCaller copies the authenticated user id from the HTTP request into the
// context tool handlers run with.
func withCaller(ctx context.Context, r *http.Request) context.Context {
	if id, ok := auth.UserIDFromContext(r.Context()); ok {
		return auth.WithUserID(ctx, id)
	}
	return ctx
}

func optionalString(request mcp.CallToolRequest, key string) *string {
	v, ok := request.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// expectedVersion reads the optional expected_version argument. Absent and
// null mean no precondition; anything but a whole non-negative number is an error.
func expectedVersion(request mcp.CallToolRequest) (*int, error) {
	raw, ok := request.GetArguments()["expected_version"]
	if !ok || raw == nil {
		return nil, nil
	}
	var v int
	switch n := raw.(type) {
	case float64:
		if n != math.Trunc(n) {
			return nil, errInvalidVersion
		}
		v = int(n)
	case int:
		v = n
	default:
		return nil, errInvalidVersion
	}
	if v < 0 {
		return nil, errInvalidVersion
	}
	return &v, nil
}

var errInvalidVersion = errors.New("expected_version must be a whole non-negative number")

func unauthenticated() *mcp.CallToolResult {
	return mcp.NewToolResultError("not authenticated")
}

func toolError(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrConflict):
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: internal error", action))
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
