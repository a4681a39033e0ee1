package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/service"
	"github.com/archonhq/archon/common/logger"
)

// PipelineHandler handles pipeline definitions and execution
type PipelineHandler struct {
	pipelines *service.PipelineService
	log       *logger.Logger
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(c *container.Container) *PipelineHandler {
	return &PipelineHandler{
		pipelines: c.Pipelines,
		log:       c.Components.Logger,
	}
}

// Create creates a pipeline; an empty stage list gets the standard
// lint/test/build/deploy sequence
// POST /api/v1/pipelines
func (h *PipelineHandler) Create(c echo.Context) error {
	var req service.CreatePipelineRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validateError(c, err)
	}
	req.Actor = actor(c)

	p, err := h.pipelines.Create(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, p)
}

// Get retrieves a pipeline, including its last run summary
// GET /api/v1/pipelines/:id
func (h *PipelineHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "pipeline id must be a UUID")
	}

	p, err := h.pipelines.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, p)
}

// ListForWorkflow lists a workflow's pipelines
// GET /api/v1/workflows/:id/pipelines
func (h *PipelineHandler) ListForWorkflow(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}

	pipelines, err := h.pipelines.ListForWorkflow(c.Request().Context(), workflowID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflow_id": workflowID,
		"pipelines":   pipelines,
		"count":       len(pipelines),
	})
}

// Execute runs a pipeline against a workflow's current spec and returns
// the full stage report
// POST /api/v1/pipelines/execute
func (h *PipelineHandler) Execute(c echo.Context) error {
	var req service.ExecutePipelineRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validateError(c, err)
	}
	req.Actor = actor(c)

	result, err := h.pipelines.Execute(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, result)
}

// Delete removes a pipeline definition
// DELETE /api/v1/pipelines/:id
func (h *PipelineHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "pipeline id must be a UUID")
	}

	if err := h.pipelines.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, h.log, err)
	}

	return c.NoContent(http.StatusNoContent)
}
