package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/service"
	"github.com/archonhq/archon/common/logger"
)

// VersionHandler handles version history, comparison and rollback
type VersionHandler struct {
	versions *service.VersionService
	log      *logger.Logger
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(c *container.Container) *VersionHandler {
	return &VersionHandler{
		versions: c.Versions,
		log:      c.Components.Logger,
	}
}

// Get retrieves a version by id
// GET /api/v1/versions/:id
func (h *VersionHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "version id must be a UUID")
	}

	v, err := h.versions.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, v)
}

// ListForWorkflow lists a workflow's version history, newest first
// GET /api/v1/workflows/:id/versions?limit=
func (h *VersionHandler) ListForWorkflow(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}
	limit := queryInt(c, "limit", 50)

	versions, err := h.versions.ListHistory(c.Request().Context(), workflowID, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflow_id": workflowID,
		"versions":    versions,
		"count":       len(versions),
	})
}

// ListDeployments lists a workflow's deployment records, newest first.
// ?active=true narrows to the current live deployment.
// GET /api/v1/workflows/:id/deployments?limit=&active=
func (h *VersionHandler) ListDeployments(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}
	limit := queryInt(c, "limit", 50)
	activeOnly := c.QueryParam("active") == "true"

	deployments, err := h.versions.ListDeployments(c.Request().Context(), workflowID, limit, activeOnly)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflow_id": workflowID,
		"deployments": deployments,
		"count":       len(deployments),
	})
}

// Compare diffs two versions
// POST /api/v1/versions/compare
func (h *VersionHandler) Compare(c echo.Context) error {
	var req service.CompareRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validateError(c, err)
	}

	result, err := h.versions.Compare(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, result)
}

// rollbackBody is the rollback request; the workflow comes from the path
type rollbackBody struct {
	TargetVersion string `json:"target_version" validate:"required"`
	Reason        string `json:"reason" validate:"required"`
}

// Rollback resets a workflow to an earlier version
// POST /api/v1/workflows/:id/rollback
func (h *VersionHandler) Rollback(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}

	var body rollbackBody
	if err := c.Bind(&body); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&body); err != nil {
		return validateError(c, err)
	}

	result, err := h.versions.Rollback(c.Request().Context(), &service.RollbackRequest{
		WorkflowID:    workflowID,
		TargetVersion: body.TargetVersion,
		Reason:        body.Reason,
		Actor:         actor(c),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, result)
}
