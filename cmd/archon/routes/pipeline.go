package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/handlers"
	"github.com/archonhq/archon/cmd/archon/middleware"
	commonmw "github.com/archonhq/archon/common/middleware"
	"github.com/archonhq/archon/common/ratelimit"
)

// RegisterPipelineRoutes registers pipeline definition and execution routes
func RegisterPipelineRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewPipelineHandler(c)

	read := e.Group("/api/v1/pipelines")
	read.Use(middleware.ExtractUsername())
	{
		read.GET("/:id", h.Get) // GET /api/v1/pipelines/{id}
	}

	write := e.Group("/api/v1/pipelines")
	write.Use(middleware.ExtractUsernameStrict())
	if c.RateLimiter != nil {
		// Executions are the expensive path; cap them per user
		write.Use(commonmw.UserRateLimitMiddleware(c.RateLimiter, ratelimit.DefaultUserExecuteLimit))
	}
	{
		write.POST("", h.Create)         // POST /api/v1/pipelines
		write.POST("/execute", h.Execute) // POST /api/v1/pipelines/execute
		write.DELETE("/:id", h.Delete)   // DELETE /api/v1/pipelines/{id}
	}

	workflows := e.Group("/api/v1/workflows")
	workflows.Use(middleware.ExtractUsername())
	workflows.GET("/:id/pipelines", h.ListForWorkflow) // GET /api/v1/workflows/{id}/pipelines
}
