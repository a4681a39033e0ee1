package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/service"
	"github.com/archonhq/archon/common/logger"
)

// AuditHandler serves the audit trail
type AuditHandler struct {
	audits *service.AuditService
	log    *logger.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(c *container.Container) *AuditHandler {
	return &AuditHandler{
		audits: c.Audits,
		log:    c.Components.Logger,
	}
}

// ListForWorkflow lists audit records touching one workflow, newest first
// GET /api/v1/workflows/:id/audit?limit=
func (h *AuditHandler) ListForWorkflow(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}
	limit := queryInt(c, "limit", 100)

	records, err := h.audits.ListForWorkflow(c.Request().Context(), workflowID, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflow_id": workflowID,
		"records":     records,
		"count":       len(records),
	})
}

// List lists recent audit records across all entities
// GET /api/v1/audit?limit=&offset=
func (h *AuditHandler) List(c echo.Context) error {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	records, err := h.audits.List(c.Request().Context(), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}
