package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/handlers"
	"github.com/archonhq/archon/cmd/archon/middleware"
)

// RegisterAuditRoutes registers audit trail routes
func RegisterAuditRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAuditHandler(c)

	audit := e.Group("/api/v1/audit")
	audit.Use(middleware.ExtractUsername())
	audit.GET("", h.List) // GET /api/v1/audit

	workflows := e.Group("/api/v1/workflows")
	workflows.Use(middleware.ExtractUsername())
	workflows.GET("/:id/audit", h.ListForWorkflow) // GET /api/v1/workflows/{id}/audit
}
