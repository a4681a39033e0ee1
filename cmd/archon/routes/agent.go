package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/handlers"
	"github.com/archonhq/archon/cmd/archon/middleware"
)

// RegisterAgentRoutes registers agent registry routes
func RegisterAgentRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAgentHandler(c)

	read := e.Group("/api/v1/agents")
	read.Use(middleware.ExtractUsername())
	{
		read.GET("", h.List)    // GET /api/v1/agents
		read.GET("/:id", h.Get) // GET /api/v1/agents/{id}
	}

	write := e.Group("/api/v1/agents")
	write.Use(middleware.ExtractUsernameStrict())
	{
		write.POST("", h.Register)     // POST /api/v1/agents
		write.PATCH("/:id", h.Update)  // PATCH /api/v1/agents/{id}
		write.DELETE("/:id", h.Delete) // DELETE /api/v1/agents/{id}
	}
}
