package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/middleware"
	"github.com/archonhq/archon/cmd/archon/service"
	"github.com/archonhq/archon/common/logger"
)

// WorkflowHandler handles workflow CRUD and spec mutations
type WorkflowHandler struct {
	workflows *service.WorkflowService
	log       *logger.Logger
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{
		workflows: c.Workflows,
		log:       c.Components.Logger,
	}
}

// Create creates a workflow with its initial version and default branch
// POST /api/v1/workflows
func (h *WorkflowHandler) Create(c echo.Context) error {
	var req service.CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validateError(c, err)
	}
	req.Actor = actor(c)

	w, err := h.workflows.Create(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, w)
}

// List lists workflows
// GET /api/v1/workflows?limit=&offset=
func (h *WorkflowHandler) List(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	workflows, err := h.workflows.List(c.Request().Context(), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

// Get retrieves a workflow by id
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}

	w, err := h.workflows.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, w)
}

// UpdateMeta changes workflow name or description
// PATCH /api/v1/workflows/:id
func (h *WorkflowHandler) UpdateMeta(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}

	var req service.UpdateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	req.Actor = actor(c)

	w, err := h.workflows.UpdateMeta(c.Request().Context(), id, &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, w)
}

// SaveSpec stores a full replacement spec as the next version
// PUT /api/v1/workflows/:id/spec
func (h *WorkflowHandler) SaveSpec(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}

	var req service.SaveSpecRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validateError(c, err)
	}
	req.Actor = actor(c)

	v, err := h.workflows.SaveSpec(c.Request().Context(), id, &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, v)
}

// PatchSpec applies RFC 6902 operations to the current spec
// PATCH /api/v1/workflows/:id/spec
func (h *WorkflowHandler) PatchSpec(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}

	var req service.PatchSpecRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validateError(c, err)
	}
	req.Actor = actor(c)

	v, err := h.workflows.PatchSpec(c.Request().Context(), id, &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, v)
}

// Delete removes a workflow
// DELETE /api/v1/workflows/:id
func (h *WorkflowHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}

	if err := h.workflows.Delete(c.Request().Context(), id, actor(c)); err != nil {
		return respondError(c, h.log, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// actor returns the caller's identity as the services expect it: nil when
// anonymous
func actor(c echo.Context) *string {
	username := middleware.GetUsername(c)
	if username == "" {
		return nil
	}
	return &username
}

// queryInt parses an integer query parameter, falling back on the default
// when absent or malformed
func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
