package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/service"
	"github.com/archonhq/archon/common/logger"
)

// AgentHandler handles the agent registry
type AgentHandler struct {
	agents *service.AgentService
	log    *logger.Logger
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(c *container.Container) *AgentHandler {
	return &AgentHandler{
		agents: c.Agents,
		log:    c.Components.Logger,
	}
}

// Register registers an agent
// POST /api/v1/agents
func (h *AgentHandler) Register(c echo.Context) error {
	var req service.RegisterAgentRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validateError(c, err)
	}

	agent, err := h.agents.Register(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, agent)
}

// List lists all registered agents
// GET /api/v1/agents
func (h *AgentHandler) List(c echo.Context) error {
	agents, err := h.agents.List(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": agents,
		"count":  len(agents),
	})
}

// Get retrieves an agent by id
// GET /api/v1/agents/:id
func (h *AgentHandler) Get(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return bindError(c, "agent id is required")
	}

	agent, err := h.agents.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, agent)
}

// Update changes agent fields
// PATCH /api/v1/agents/:id
func (h *AgentHandler) Update(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return bindError(c, "agent id is required")
	}

	var req service.UpdateAgentRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c, "invalid request body")
	}

	agent, err := h.agents.Update(c.Request().Context(), id, &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, agent)
}

// Delete removes an agent from the registry
// DELETE /api/v1/agents/:id
func (h *AgentHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return bindError(c, "agent id is required")
	}

	if err := h.agents.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, h.log, err)
	}

	return c.NoContent(http.StatusNoContent)
}
