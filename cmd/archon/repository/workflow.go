package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/db"
)

// WorkflowRepository handles database operations for workflows
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `id, name, description, status, spec, version, row_version, created_by, created_at, updated_at`

// Create inserts a new workflow
func (r *WorkflowRepository) Create(ctx context.Context, w *models.Workflow) error {
	query := `
		INSERT INTO workflow (id, name, description, status, spec, version, row_version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		w.ID,
		w.Name,
		w.Description,
		w.Status,
		w.Spec,
		w.Version,
		w.RowVersion,
		w.CreatedBy,
		w.CreatedAt,
		w.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

// GetByID retrieves a workflow by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflow
		WHERE id = $1
	`

	w := &models.Workflow{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&w.ID,
		&w.Name,
		&w.Description,
		&w.Status,
		&w.Spec,
		&w.Version,
		&w.RowVersion,
		&w.CreatedBy,
		&w.CreatedAt,
		&w.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return w, nil
}

// List retrieves workflows ordered by most recently updated
func (r *WorkflowRepository) List(ctx context.Context, limit, offset int) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflow
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		w := &models.Workflow{}
		err := rows.Scan(
			&w.ID,
			&w.Name,
			&w.Description,
			&w.Status,
			&w.Spec,
			&w.Version,
			&w.RowVersion,
			&w.CreatedBy,
			&w.CreatedAt,
			&w.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// UpdateMeta updates name, description and status
func (r *WorkflowRepository) UpdateMeta(ctx context.Context, w *models.Workflow) error {
	query := `
		UPDATE workflow
		SET name = $2, description = $3, status = $4,
		    row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING row_version
	`

	err := r.db.QueryRow(ctx, query,
		w.ID,
		w.Name,
		w.Description,
		w.Status,
	).Scan(&w.RowVersion)

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("workflow %s: %w", w.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	return nil
}

// CompareAndSwapSpec updates the denormalized spec, version and status only
// if the row version still matches (optimistic lock). Returns false when a
// concurrent writer got there first.
func (r *WorkflowRepository) CompareAndSwapSpec(ctx context.Context, id uuid.UUID, expectedRowVersion int64, spec json.RawMessage, version string, status models.WorkflowStatus) (bool, error) {
	query := `
		UPDATE workflow
		SET spec = $3, version = $4, status = $5,
		    row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1 AND row_version = $2
		RETURNING row_version
	`

	var newRowVersion int64
	err := r.db.QueryRow(ctx, query,
		id,
		expectedRowVersion,
		spec,
		version,
		status,
	).Scan(&newRowVersion)

	if errors.Is(err, pgx.ErrNoRows) {
		// No row matched: either the workflow is gone or the version moved
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to swap workflow spec: %w", err)
	}

	return true, nil
}

// UpdateStatus sets the workflow lifecycle status
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.WorkflowStatus) error {
	query := `
		UPDATE workflow
		SET status = $2, row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}

	return nil
}

// Delete removes a workflow and everything hanging off it (cascades)
func (r *WorkflowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM workflow WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}

	return nil
}
