package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"promptlab/internal/auth"
	"promptlab/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the unauthenticated operational endpoints.
type Handler struct {
	store   Pinger
	version string
}

// NewHandler creates a new Handler.
func NewHandler(store Pinger, version string) *Handler {
	return &Handler{store: store, version: version}
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Store     string    `json:"store"`
}

// HandleHealth reports service and store health. It answers 503 when the
// store cannot be reached.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "promptlab",
		Version:   h.version,
		Store:     "ok",
	}
	code := http.StatusOK
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Store = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
	Field    string `json:"field,omitempty"`
}

// problemFor maps an error to its problem document.
func problemFor(err error) ProblemDetails {
	p := ProblemDetails{Type: "about:blank", Detail: err.Error()}

	var he *echo.HTTPError
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		p.Status, p.Title, p.Field = http.StatusUnprocessableEntity, "Validation Failed", ve.Field
	case errors.Is(err, models.ErrNotFound):
		p.Status, p.Title = http.StatusNotFound, "Not Found"
	case errors.Is(err, models.ErrConflict):
		p.Status, p.Title = http.StatusConflict, "Conflict"
	case errors.Is(err, context.DeadlineExceeded):
		p.Status, p.Title = http.StatusServiceUnavailable, "Request Timeout"
		p.Detail = "the request took too long, try again"
	case errors.As(err, &he):
		p.Status = he.Code
		p.Title = http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			p.Detail = msg
		} else {
			p.Detail = p.Title
		}
	default:
		p.Status, p.Title = http.StatusInternalServerError, "Internal Server Error"
		p.Detail = "an unexpected error occurred"
	}
	return p
}

// ErrorHandler renders every error returned by a handler as
// application/problem+json.
func ErrorHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		p := problemFor(err)
		p.Instance = c.Request().URL.Path
		if p.Status >= http.StatusInternalServerError && logger != nil {
			logger.Error("request failed", "method", c.Request().Method, "path", p.Instance, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(p.Status)
		} else {
			c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
			err = c.JSON(p.Status, p)
		}
		if err != nil && logger != nil {
			logger.Error("failed to write error response", "error", err)
		}
	}
}

// ownerID returns the authenticated user id placed in the context by auth.
func ownerID(c echo.Context) (string, error) {
	id, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "user not found in context")
	}
	return id, nil
}

// pathUUID binds a uuid path parameter the way generated server code does.
func pathUUID(c echo.Context, name string) (string, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, c.Param(name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Invalid format for parameter "+name+": "+err.Error())
	}
	return id.String(), nil
}

// expectedVersion parses an If-Match header carrying a workflow version,
// accepting 3, "3" and W/"3". A list is accepted when every entry names the
// same version. An absent header means no precondition.
func expectedVersion(c echo.Context) (*int, error) {
	raw := strings.TrimSpace(c.Request().Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return nil, nil
	}
	var version *int
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
		v, err := strconv.Atoi(strings.Trim(tag, `"`))
		if err != nil || v < 0 {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "If-Match must carry a workflow version")
		}
		if version != nil && *version != v {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "If-Match must name a single workflow version")
		}
		version = &v
	}
	return version, nil
}

func setETag(c echo.Context, version int) {
	c.Response().Header().Set("ETag", `"`+strconv.Itoa(version)+`"`)
}

func bind(c echo.Context, dest any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return nil
}
