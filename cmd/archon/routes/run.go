package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/handlers"
	"github.com/archonhq/archon/cmd/archon/middleware"
)

// RegisterRunRoutes registers run bookkeeping routes
func RegisterRunRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewRunHandler(c)

	read := e.Group("/api/v1/runs")
	read.Use(middleware.ExtractUsername())
	{
		read.GET("/:id", h.Get) // GET /api/v1/runs/{id}
	}

	write := e.Group("/api/v1/runs")
	write.Use(middleware.ExtractUsernameStrict())
	{
		write.POST("", h.Submit)                // POST /api/v1/runs
		write.PUT("/:id/status", h.UpdateStatus) // PUT /api/v1/runs/{id}/status
	}

	workflows := e.Group("/api/v1/workflows")
	workflows.Use(middleware.ExtractUsername())
	workflows.GET("/:id/runs", h.ListForWorkflow) // GET /api/v1/workflows/{id}/runs
}
