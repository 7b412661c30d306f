package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"promptlab/pkg/models"
)

// ListPromptsParams are the query parameters of GET /prompts.
type ListPromptsParams struct {
	Q      *string             `form:"q"`
	TagID  *openapi_types.UUID `form:"tag_id"`
	Pinned *bool               `form:"pinned"`
}

func bindListPromptsParams(c echo.Context) (ListPromptsParams, error) {
	var params ListPromptsParams
	query := c.QueryParams()
	if err := runtime.BindQueryParameter("form", true, false, "q", query, &params.Q); err != nil {
		return params, echo.NewHTTPError(http.StatusBadRequest, "Invalid format for parameter q: "+err.Error())
	}
	if err := runtime.BindQueryParameter("form", true, false, "tag_id", query, &params.TagID); err != nil {
		return params, echo.NewHTTPError(http.StatusBadRequest, "Invalid format for parameter tag_id: "+err.Error())
	}
	if err := runtime.BindQueryParameter("form", true, false, "pinned", query, &params.Pinned); err != nil {
		return params, echo.NewHTTPError(http.StatusBadRequest, "Invalid format for parameter pinned: "+err.Error())
	}
	return params, nil
}

// ListPrompts lists the caller's prompts with optional search, tag and pin filters
// (GET /api/v1/prompts)
func (s *Server) ListPrompts(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	params, err := bindListPromptsParams(c)
	if err != nil {
		return err
	}

	var filter models.PromptFilter
	if params.Q != nil {
		filter.Query = *params.Q
	}
	if params.TagID != nil {
		filter.TagID = params.TagID.String()
	}
	if params.Pinned != nil {
		filter.PinnedOnly = *params.Pinned
	}

	prompts, err := s.Prompts.List(c.Request().Context(), owner, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, prompts)
}

// CreatePrompt saves a prompt
// (POST /api/v1/prompts)
func (s *Server) CreatePrompt(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	var in models.PromptInput
	if err := bind(c, &in); err != nil {
		return err
	}
	p, err := s.Prompts.Create(c.Request().Context(), owner, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

// GetPrompt returns a prompt with its tags and pin state
// (GET /api/v1/prompts/{id})
func (s *Server) GetPrompt(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	p, err := s.Prompts.Get(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// UpdatePrompt replaces a prompt's editable fields
// (PUT /api/v1/prompts/{id})
func (s *Server) UpdatePrompt(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var in models.PromptInput
	if err := bind(c, &in); err != nil {
		return err
	}
	p, err := s.Prompts.Update(c.Request().Context(), owner, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// DeletePrompt deletes a prompt unless a workflow step uses it
// (DELETE /api/v1/prompts/{id})
func (s *Server) DeletePrompt(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := s.Prompts.Delete(c.Request().Context(), owner, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// PinPrompt (PUT /api/v1/prompts/{id}/pin)
func (s *Server) PinPrompt(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	p, err := s.Prompts.Pin(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// UnpinPrompt (DELETE /api/v1/prompts/{id}/pin)
func (s *Server) UnpinPrompt(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	p, err := s.Prompts.Unpin(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// ListPromptTags (GET /api/v1/prompts/{id}/tags)
func (s *Server) ListPromptTags(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	tags, err := s.Prompts.Tags(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tags)
}

// AddTagsRequest lists tags to attach to a prompt.
type AddTagsRequest struct {
	TagIDs []string `json:"tag_ids"`
}

// AddPromptTags attaches tags; already attached tags are ignored
// (POST /api/v1/prompts/{id}/tags)
func (s *Server) AddPromptTags(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req AddTagsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	tags, err := s.Prompts.AddTags(c.Request().Context(), owner, id, req.TagIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tags)
}

// RemovePromptTag (DELETE /api/v1/prompts/{id}/tags/{tagId})
func (s *Server) RemovePromptTag(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	tagID, err := pathUUID(c, "tagId")
	if err != nil {
		return err
	}
	tags, err := s.Prompts.RemoveTag(c.Request().Context(), owner, id, tagID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tags)
}

// GetDashboard returns library counts
// (GET /api/v1/dashboard)
func (s *Server) GetDashboard(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	stats, err := s.Prompts.Dashboard(c.Request().Context(), owner)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
