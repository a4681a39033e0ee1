package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/service"
	"github.com/archonhq/archon/common/logger"
)

// BranchHandler handles branch lifecycle and merges
type BranchHandler struct {
	branches *service.BranchService
	merges   *service.MergeService
	log      *logger.Logger
}

// NewBranchHandler creates a new branch handler
func NewBranchHandler(c *container.Container) *BranchHandler {
	return &BranchHandler{
		branches: c.Branches,
		merges:   c.Merges,
		log:      c.Components.Logger,
	}
}

// Create creates a branch from a version
// POST /api/v1/branches
func (h *BranchHandler) Create(c echo.Context) error {
	var req service.CreateBranchRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validateError(c, err)
	}
	req.Actor = actor(c)

	b, err := h.branches.Create(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, b)
}

// Get retrieves a branch by id
// GET /api/v1/branches/:id
func (h *BranchHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "branch id must be a UUID")
	}

	b, err := h.branches.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, b)
}

// ListForWorkflow lists a workflow's branches, default branch first
// GET /api/v1/workflows/:id/branches
func (h *BranchHandler) ListForWorkflow(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}

	branches, err := h.branches.ListForWorkflow(c.Request().Context(), workflowID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflow_id": workflowID,
		"branches":    branches,
		"count":       len(branches),
	})
}

// Merge merges a source branch into a target branch. Unresolved conflicts
// come back as a 409 carrying the conflict list.
// POST /api/v1/branches/merge
func (h *BranchHandler) Merge(c echo.Context) error {
	var req service.MergeBranchesRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validateError(c, err)
	}
	req.Actor = actor(c)

	result, err := h.merges.MergeBranches(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, result)
}

// SetProtection toggles merge protection on a branch
// PUT /api/v1/branches/:id/protection
func (h *BranchHandler) SetProtection(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "branch id must be a UUID")
	}

	var req struct {
		Protected bool `json:"is_protected"`
	}
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}

	b, err := h.branches.SetProtected(c.Request().Context(), id, req.Protected, actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, b)
}

// Delete removes a branch; the default branch is refused
// DELETE /api/v1/branches/:id
func (h *BranchHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "branch id must be a UUID")
	}

	if err := h.branches.Delete(c.Request().Context(), id, actor(c)); err != nil {
		return respondError(c, h.log, err)
	}

	return c.NoContent(http.StatusNoContent)
}
