package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/handlers"
	"github.com/archonhq/archon/cmd/archon/middleware"
)

// RegisterBranchRoutes registers branch lifecycle and merge routes
func RegisterBranchRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewBranchHandler(c)

	read := e.Group("/api/v1/branches")
	read.Use(middleware.ExtractUsername())
	{
		read.GET("/:id", h.Get) // GET /api/v1/branches/{id}
	}

	write := e.Group("/api/v1/branches")
	write.Use(middleware.ExtractUsernameStrict())
	{
		write.POST("", h.Create)                      // POST /api/v1/branches
		write.POST("/merge", h.Merge)                 // POST /api/v1/branches/merge
		write.PUT("/:id/protection", h.SetProtection) // PUT /api/v1/branches/{id}/protection
		write.DELETE("/:id", h.Delete)                // DELETE /api/v1/branches/{id}
	}

	// Branch listing hangs off the owning workflow
	workflows := e.Group("/api/v1/workflows")
	workflows.Use(middleware.ExtractUsername())
	workflows.GET("/:id/branches", h.ListForWorkflow) // GET /api/v1/workflows/{id}/branches
}
