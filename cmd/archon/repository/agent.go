package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/db"
)

// AgentRepository handles database operations for the agent registry
type AgentRepository struct {
	db *db.DB
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db *db.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

const agentColumns = `id, name, model, description, status, created_at, updated_at`

// Create inserts a new agent
func (r *AgentRepository) Create(ctx context.Context, a *models.Agent) error {
	query := `
		INSERT INTO agent (id, name, model, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		a.ID,
		a.Name,
		a.Model,
		a.Description,
		a.Status,
		a.CreatedAt,
		a.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	return nil
}

// GetByID retrieves an agent by ID
func (r *AgentRepository) GetByID(ctx context.Context, id string) (*models.Agent, error) {
	query := `
		SELECT ` + agentColumns + `
		FROM agent
		WHERE id = $1
	`

	a := &models.Agent{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.Name,
		&a.Model,
		&a.Description,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	return a, nil
}

// List retrieves all registered agents
func (r *AgentRepository) List(ctx context.Context) ([]*models.Agent, error) {
	query := `
		SELECT ` + agentColumns + `
		FROM agent
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		a := &models.Agent{}
		err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.Model,
			&a.Description,
			&a.Status,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}

	return agents, nil
}

// FilterMissing returns the subset of ids with no available agent row.
// Used by the pipeline test stage to resolve agent references in bulk.
func (r *AgentRepository) FilterMissing(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id
		FROM agent
		WHERE id = ANY($1) AND status = $2
	`

	rows, err := r.db.Query(ctx, query, ids, models.AgentAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve agents: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan agent id: %w", err)
		}
		found[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent ids: %w", err)
	}

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}

	return missing, nil
}

// Update updates an agent's mutable fields
func (r *AgentRepository) Update(ctx context.Context, a *models.Agent) error {
	query := `
		UPDATE agent
		SET name = $2, model = $3, description = $4, status = $5, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, a.ID, a.Name, a.Model, a.Description, a.Status)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", a.ID, ErrNotFound)
	}

	return nil
}

// Delete removes an agent from the registry
func (r *AgentRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM agent WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}

	return nil
}
