// Package api contains the HTTP handlers for the prompt lab REST API
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"promptlab/internal/services"
	"promptlab/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Workflows services.Workflows
	Prompts   services.Prompts
	Tags      services.Tags
}

// NewServer creates a new Server.
func NewServer(workflows services.Workflows, prompts services.Prompts, tags services.Tags) *Server {
	return &Server{Workflows: workflows, Prompts: prompts, Tags: tags}
}

// RegisterHandlers mounts every authenticated route on g (normally /api/v1).
func RegisterHandlers(g *echo.Group, s *Server) {
	g.GET("/dashboard", s.GetDashboard)

	g.GET("/prompts", s.ListPrompts)
	g.POST("/prompts", s.CreatePrompt)
	g.GET("/prompts/:id", s.GetPrompt)
	g.PUT("/prompts/:id", s.UpdatePrompt)
	g.DELETE("/prompts/:id", s.DeletePrompt)
	g.PUT("/prompts/:id/pin", s.PinPrompt)
	g.DELETE("/prompts/:id/pin", s.UnpinPrompt)
	g.GET("/prompts/:id/tags", s.ListPromptTags)
	g.POST("/prompts/:id/tags", s.AddPromptTags)
	g.DELETE("/prompts/:id/tags/:tagId", s.RemovePromptTag)

	g.GET("/tags", s.ListTags)
	g.POST("/tags", s.CreateTag)
	g.GET("/tags/:id", s.GetTag)
	g.PUT("/tags/:id", s.UpdateTag)
	g.DELETE("/tags/:id", s.DeleteTag)

	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.PUT("/workflows/:id", s.UpdateWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)
	g.GET("/workflows/:id/steps", s.ListSteps)
	g.POST("/workflows/:id/steps", s.AppendStep)
	g.PUT("/workflows/:id/steps/order", s.ReorderSteps)

	g.PATCH("/steps/:id", s.UpdateStep)
	g.DELETE("/steps/:id", s.RemoveStep)
	g.POST("/steps/:id/move", s.MoveStep)
}

// ListWorkflows returns the caller's workflows newest first
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	workflows, err := s.Workflows.List(c.Request().Context(), owner)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, workflows)
}

// CreateWorkflow creates an empty workflow
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	var in models.WorkflowInput
	if err := bind(c, &in); err != nil {
		return err
	}
	w, err := s.Workflows.Create(c.Request().Context(), owner, in)
	if err != nil {
		return err
	}
	setETag(c, w.Version)
	return c.JSON(http.StatusCreated, w)
}

// GetWorkflow returns a workflow with its ordered steps
// (GET /api/v1/workflows/{id})
func (s *Server) GetWorkflow(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	w, err := s.Workflows.Get(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	setETag(c, w.Version)
	return c.JSON(http.StatusOK, w)
}

// UpdateWorkflow renames a workflow
// (PUT /api/v1/workflows/{id})
func (s *Server) UpdateWorkflow(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var in models.WorkflowInput
	if err := bind(c, &in); err != nil {
		return err
	}
	w, err := s.Workflows.Update(c.Request().Context(), owner, id, in)
	if err != nil {
		return err
	}
	setETag(c, w.Version)
	return c.JSON(http.StatusOK, w)
}

// DeleteWorkflow deletes a workflow and its steps
// (DELETE /api/v1/workflows/{id})
func (s *Server) DeleteWorkflow(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := s.Workflows.Delete(c.Request().Context(), owner, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListSteps returns the ordered steps of a workflow
// (GET /api/v1/workflows/{id}/steps)
func (s *Server) ListSteps(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	steps, err := s.Workflows.Steps(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, steps)
}

// AppendStep adds a step at the end of a workflow
// (POST /api/v1/workflows/{id}/steps)
func (s *Server) AppendStep(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	var in models.StepInput
	if err := bind(c, &in); err != nil {
		return err
	}
	res, err := s.Workflows.AppendStep(c.Request().Context(), owner, id, in, version)
	if err != nil {
		return err
	}
	return mutationResponse(c, http.StatusCreated, res)
}

// ReorderRequest is the body of a full reorder.
type ReorderRequest struct {
	StepIDs []string `json:"step_ids"`
}

// ReorderSteps replaces the order of every step
// (PUT /api/v1/workflows/{id}/steps/order)
func (s *Server) ReorderSteps(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	var req ReorderRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.Workflows.ReorderSteps(c.Request().Context(), owner, id, req.StepIDs, version)
	if err != nil {
		return err
	}
	return mutationResponse(c, http.StatusOK, res)
}

// UpdateStepRequest is a partial step edit. Setting prompt_id or
// custom_prompt replaces the payload; exactly one of them may be set.
type UpdateStepRequest struct {
	PromptID     *string `json:"prompt_id"`
	CustomPrompt *string `json:"custom_prompt"`
	Notes        *string `json:"notes"`
}

// UpdateStep edits a step's payload and/or notes
// (PATCH /api/v1/steps/{id})
func (s *Server) UpdateStep(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	var req UpdateStepRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	changes := models.StepChanges{Notes: req.Notes}
	if req.PromptID != nil || req.CustomPrompt != nil {
		payload, err := models.NewStepPayload(req.PromptID, req.CustomPrompt)
		if err != nil {
			return err
		}
		changes.Payload = payload
	}
	res, err := s.Workflows.UpdateStep(c.Request().Context(), owner, id, changes, version)
	if err != nil {
		return err
	}
	return mutationResponse(c, http.StatusOK, res)
}

// RemoveStep deletes a step and closes the gap
// (DELETE /api/v1/steps/{id})
func (s *Server) RemoveStep(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	res, err := s.Workflows.RemoveStep(c.Request().Context(), owner, id, version)
	if err != nil {
		return err
	}
	return mutationResponse(c, http.StatusOK, res)
}

// MoveRequest is the body of a single-position move.
type MoveRequest struct {
	Direction string `json:"direction"`
}

// MoveStep shifts a step one position up or down
// (POST /api/v1/steps/{id}/move)
func (s *Server) MoveStep(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	var req MoveRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	dir, err := models.ParseDirection(req.Direction)
	if err != nil {
		return err
	}
	res, err := s.Workflows.MoveStep(c.Request().Context(), owner, id, dir, version)
	if err != nil {
		return err
	}
	return mutationResponse(c, http.StatusOK, res)
}

func mutationResponse(c echo.Context, status int, res *services.StepMutation) error {
	setETag(c, res.Workflow.Version)
	return c.JSON(status, res)
}
