package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/handlers"
	"github.com/archonhq/archon/cmd/archon/middleware"
)

// RegisterRecommendationRoutes registers the LLM review route. Call only
// when the recommendation service is configured.
func RegisterRecommendationRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewRecommendationHandler(c)

	workflows := e.Group("/api/v1/workflows")
	workflows.Use(middleware.ExtractUsernameStrict())
	workflows.POST("/:id/recommendations", h.Recommend) // POST /api/v1/workflows/{id}/recommendations
}
