package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/cmd/archon/repository"
	"github.com/archonhq/archon/common/logger"
)

// AgentService manages the registry that agent nodes reference by
// config.agent_id
type AgentService struct {
	agents AgentStore
	log    *logger.Logger
}

// NewAgentService creates a new agent service
func NewAgentService(agents AgentStore, log *logger.Logger) *AgentService {
	return &AgentService{
		agents: agents,
		log:    log,
	}
}

// RegisterAgentRequest carries a new agent registration. IDs are
// caller-chosen so workflow specs stay readable.
type RegisterAgentRequest struct {
	ID          string  `json:"id" validate:"required,max=100"`
	Name        string  `json:"name" validate:"required,max=200"`
	Model       string  `json:"model" validate:"required,max=100"`
	Description *string `json:"description,omitempty"`
}

// Register adds an agent to the registry
func (s *AgentService) Register(ctx context.Context, req *RegisterAgentRequest) (*models.Agent, error) {
	existing, err := s.agents.GetByID(ctx, req.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check agent id: %w", err)
	}
	if existing != nil {
		return nil, &ConflictError{Reason: fmt.Sprintf("agent %q already registered", req.ID)}
	}

	now := time.Now()
	agent := &models.Agent{
		ID:          req.ID,
		Name:        req.Name,
		Model:       req.Model,
		Description: req.Description,
		Status:      models.AgentAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}

	s.log.Info("agent registered", "agent_id", agent.ID, "model", agent.Model)
	return agent, nil
}

// Get retrieves an agent by ID
func (s *AgentService) Get(ctx context.Context, id string) (*models.Agent, error) {
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "agent", id)
	}
	return agent, nil
}

// List retrieves all registered agents
func (s *AgentService) List(ctx context.Context) ([]*models.Agent, error) {
	return s.agents.List(ctx)
}

// UpdateAgentRequest carries agent changes; nil fields are left as is
type UpdateAgentRequest struct {
	Name        *string             `json:"name,omitempty"`
	Model       *string             `json:"model,omitempty"`
	Description *string             `json:"description,omitempty"`
	Status      *models.AgentStatus `json:"status,omitempty"`
}

// Update changes agent fields
func (s *AgentService) Update(ctx context.Context, id string, req *UpdateAgentRequest) (*models.Agent, error) {
	agent, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.Model != nil {
		agent.Model = *req.Model
	}
	if req.Description != nil {
		agent.Description = req.Description
	}
	if req.Status != nil {
		switch *req.Status {
		case models.AgentAvailable, models.AgentDisabled:
			agent.Status = *req.Status
		default:
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown agent status %q", *req.Status)}
		}
	}

	if err := s.agents.Update(ctx, agent); err != nil {
		return nil, mapNotFound(err, "agent", id)
	}

	s.log.Info("agent updated", "agent_id", id)
	return agent, nil
}

// Delete removes an agent from the registry. Workflows referencing it will
// fail the pipeline test stage until re-pointed.
func (s *AgentService) Delete(ctx context.Context, id string) error {
	if err := s.agents.Delete(ctx, id); err != nil {
		return mapNotFound(err, "agent", id)
	}

	s.log.Info("agent deleted", "agent_id", id)
	return nil
}
