package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/middleware"
	"github.com/archonhq/archon/cmd/archon/service"
	"github.com/archonhq/archon/common/logger"
)

// RecommendationHandler serves LLM workflow reviews. Only registered when
// ENABLE_RECOMMENDATIONS is on.
type RecommendationHandler struct {
	recommendations *service.RecommendationService
	log             *logger.Logger
}

// NewRecommendationHandler creates a new recommendation handler
func NewRecommendationHandler(c *container.Container) *RecommendationHandler {
	return &RecommendationHandler{
		recommendations: c.Recommendations,
		log:             c.Components.Logger,
	}
}

// Recommend reviews a workflow's structure and returns suggestions
// POST /api/v1/workflows/:id/recommendations
func (h *RecommendationHandler) Recommend(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return bindError(c, "workflow id must be a UUID")
	}

	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	var body struct {
		Focus string `json:"focus,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return bindError(c, "invalid request body")
	}

	recs, err := h.recommendations.Recommend(c.Request().Context(), workflowID, body.Focus, username)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflow_id":     workflowID,
		"recommendations": recs,
		"count":           len(recs),
	})
}
