package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/cmd/archon/service"
	"github.com/archonhq/archon/common/logger"
)

// RunHandler handles workflow run bookkeeping
type RunHandler struct {
	runs *service.RunService
	log  *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(c *container.Container) *RunHandler {
	return &RunHandler{
		runs: c.Runs,
		log:  c.Components.Logger,
	}
}

// Submit queues a run pinned to the workflow's current version
// POST /api/v1/runs
func (h *RunHandler) Submit(c echo.Context) error {
	var req service.SubmitRunRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validateError(c, err)
	}
	req.Actor = actor(c)

	run, err := h.runs.Submit(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, run)
}

// Get retrieves a run by id
// GET /api/v1/runs/:id
func (h *RunHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "run id must be a UUID")
	}

	run, err := h.runs.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, run)
}

// ListForWorkflow lists a workflow's runs, newest first
// GET /api/v1/workflows/:id/runs?limit=
func (h *RunHandler) ListForWorkflow(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}
	limit := queryInt(c, "limit", 50)

	runs, err := h.runs.ListForWorkflow(c.Request().Context(), workflowID, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflow_id": workflowID,
		"runs":        runs,
		"count":       len(runs),
	})
}

// UpdateStatus moves a run through its lifecycle
// PUT /api/v1/runs/:id/status
func (h *RunHandler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "run id must be a UUID")
	}

	var body struct {
		Status models.RunStatus `json:"status" validate:"required"`
	}
	if err := c.Bind(&body); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&body); err != nil {
		return validateError(c, err)
	}

	run, err := h.runs.UpdateStatus(c.Request().Context(), id, body.Status)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, run)
}
