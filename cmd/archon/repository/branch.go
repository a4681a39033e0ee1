package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/db"
)

// BranchRepository handles database operations for workflow branches
type BranchRepository struct {
	db *db.DB
}

// NewBranchRepository creates a new branch repository
func NewBranchRepository(db *db.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

const branchColumns = `id, workflow_id, name, head_version_id, is_default, is_protected, status, row_version, merged_at, merged_by, created_by, created_at, updated_at`

// Create inserts a new branch
func (r *BranchRepository) Create(ctx context.Context, b *models.WorkflowBranch) error {
	query := `
		INSERT INTO workflow_branch (id, workflow_id, name, head_version_id, is_default, is_protected, status, row_version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(ctx, query,
		b.ID,
		b.WorkflowID,
		b.Name,
		b.HeadVersionID,
		b.IsDefault,
		b.IsProtected,
		b.Status,
		b.RowVersion,
		b.CreatedBy,
		b.CreatedAt,
		b.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create branch: %w", err)
	}

	return nil
}

// GetByID retrieves a branch by ID
func (r *BranchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowBranch, error) {
	query := `
		SELECT ` + branchColumns + `
		FROM workflow_branch
		WHERE id = $1
	`

	return r.scanBranch(r.db.QueryRow(ctx, query, id), id.String())
}

// GetByWorkflowAndName retrieves a branch by its name within a workflow
func (r *BranchRepository) GetByWorkflowAndName(ctx context.Context, workflowID uuid.UUID, name string) (*models.WorkflowBranch, error) {
	query := `
		SELECT ` + branchColumns + `
		FROM workflow_branch
		WHERE workflow_id = $1 AND name = $2
	`

	return r.scanBranch(r.db.QueryRow(ctx, query, workflowID, name), name)
}

// GetDefault retrieves the default branch of a workflow
func (r *BranchRepository) GetDefault(ctx context.Context, workflowID uuid.UUID) (*models.WorkflowBranch, error) {
	query := `
		SELECT ` + branchColumns + `
		FROM workflow_branch
		WHERE workflow_id = $1 AND is_default = TRUE
	`

	return r.scanBranch(r.db.QueryRow(ctx, query, workflowID), "default branch")
}

// ListByWorkflow retrieves all branches of a workflow
func (r *BranchRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.WorkflowBranch, error) {
	query := `
		SELECT ` + branchColumns + `
		FROM workflow_branch
		WHERE workflow_id = $1
		ORDER BY is_default DESC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	var branches []*models.WorkflowBranch
	for rows.Next() {
		b := &models.WorkflowBranch{}
		err := rows.Scan(
			&b.ID,
			&b.WorkflowID,
			&b.Name,
			&b.HeadVersionID,
			&b.IsDefault,
			&b.IsProtected,
			&b.Status,
			&b.RowVersion,
			&b.MergedAt,
			&b.MergedBy,
			&b.CreatedBy,
			&b.CreatedAt,
			&b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		branches = append(branches, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating branches: %w", err)
	}

	return branches, nil
}

// CompareAndSwapHead moves the branch head only if the row version still
// matches (optimistic lock). Returns false when a concurrent merge moved
// the head first.
func (r *BranchRepository) CompareAndSwapHead(ctx context.Context, id uuid.UUID, expectedRowVersion int64, newHead uuid.UUID) (bool, error) {
	query := `
		UPDATE workflow_branch
		SET head_version_id = $3, row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1 AND row_version = $2
		RETURNING row_version
	`

	var newRowVersion int64
	err := r.db.QueryRow(ctx, query, id, expectedRowVersion, newHead).Scan(&newRowVersion)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to swap branch head: %w", err)
	}

	return true, nil
}

// MarkMerged flags a branch as merged and stamps who merged it
func (r *BranchRepository) MarkMerged(ctx context.Context, id uuid.UUID, mergedBy *string) error {
	query := `
		UPDATE workflow_branch
		SET status = $2, merged_at = NOW(), merged_by = $3,
		    row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, models.BranchStatusMerged, mergedBy)
	if err != nil {
		return fmt.Errorf("failed to mark branch merged: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("branch %s: %w", id, ErrNotFound)
	}

	return nil
}

// SetProtected toggles branch protection
func (r *BranchRepository) SetProtected(ctx context.Context, id uuid.UUID, protected bool) error {
	query := `
		UPDATE workflow_branch
		SET is_protected = $2, row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, protected)
	if err != nil {
		return fmt.Errorf("failed to update branch protection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("branch %s: %w", id, ErrNotFound)
	}

	return nil
}

// Delete removes a branch
func (r *BranchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM workflow_branch WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete branch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("branch %s: %w", id, ErrNotFound)
	}

	return nil
}

func (r *BranchRepository) scanBranch(row pgx.Row, ref string) (*models.WorkflowBranch, error) {
	b := &models.WorkflowBranch{}
	err := row.Scan(
		&b.ID,
		&b.WorkflowID,
		&b.Name,
		&b.HeadVersionID,
		&b.IsDefault,
		&b.IsProtected,
		&b.Status,
		&b.RowVersion,
		&b.MergedAt,
		&b.MergedBy,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("branch %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get branch: %w", err)
	}

	return b, nil
}
