package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/handlers"
	"github.com/archonhq/archon/cmd/archon/middleware"
)

// RegisterVersionRoutes registers version history, compare and rollback
// routes
func RegisterVersionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewVersionHandler(c)

	versions := e.Group("/api/v1/versions")
	versions.Use(middleware.ExtractUsername())
	{
		versions.GET("/:id", h.Get)          // GET /api/v1/versions/{id}
		versions.POST("/compare", h.Compare) // POST /api/v1/versions/compare
	}

	workflows := e.Group("/api/v1/workflows")
	workflows.Use(middleware.ExtractUsername())
	workflows.GET("/:id/versions", h.ListForWorkflow)    // GET /api/v1/workflows/{id}/versions
	workflows.GET("/:id/deployments", h.ListDeployments) // GET /api/v1/workflows/{id}/deployments

	// Rollback rewrites live state, so it takes identity plus the editor
	// role
	rollback := e.Group("/api/v1/workflows")
	rollback.Use(middleware.ExtractUsernameStrict(), middleware.RequireRole(middleware.RoleEditor))
	rollback.POST("/:id/rollback", h.Rollback) // POST /api/v1/workflows/{id}/rollback
}
