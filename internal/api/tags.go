package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"promptlab/pkg/models"
)

// ListTags (GET /api/v1/tags)
func (s *Server) ListTags(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	tags, err := s.Tags.List(c.Request().Context(), owner)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tags)
}

// CreateTag (POST /api/v1/tags)
func (s *Server) CreateTag(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	var in models.TagInput
	if err := bind(c, &in); err != nil {
		return err
	}
	tag, err := s.Tags.Create(c.Request().Context(), owner, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tag)
}

// GetTag (GET /api/v1/tags/{id})
func (s *Server) GetTag(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	tag, err := s.Tags.Get(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tag)
}

// UpdateTag (PUT /api/v1/tags/{id})
func (s *Server) UpdateTag(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var in models.TagInput
	if err := bind(c, &in); err != nil {
		return err
	}
	tag, err := s.Tags.Update(c.Request().Context(), owner, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tag)
}

// DeleteTag removes a tag from every prompt and deletes it
// (DELETE /api/v1/tags/{id})
func (s *Server) DeleteTag(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := s.Tags.Delete(c.Request().Context(), owner, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
