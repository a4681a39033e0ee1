package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/handlers"
	"github.com/archonhq/archon/cmd/archon/middleware"
)

// RegisterWorkflowRoutes registers workflow CRUD and spec mutation routes
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c)

	read := e.Group("/api/v1/workflows")
	read.Use(middleware.ExtractUsername())
	{
		read.GET("", h.List)       // GET /api/v1/workflows
		read.GET("/:id", h.Get)    // GET /api/v1/workflows/{id}
	}

	write := e.Group("/api/v1/workflows")
	write.Use(middleware.ExtractUsernameStrict())
	{
		write.POST("", h.Create)              // POST /api/v1/workflows
		write.PATCH("/:id", h.UpdateMeta)     // PATCH /api/v1/workflows/{id}
		write.DELETE("/:id", h.Delete)        // DELETE /api/v1/workflows/{id}
		write.PUT("/:id/spec", h.SaveSpec)    // PUT /api/v1/workflows/{id}/spec
		write.PATCH("/:id/spec", h.PatchSpec) // PATCH /api/v1/workflows/{id}/spec
	}
}
