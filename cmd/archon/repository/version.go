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

// VersionRepository handles database operations for workflow versions
type VersionRepository struct {
	db *db.DB
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *db.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

const versionColumns = `id, workflow_id, branch_id, version, spec, change_summary, parent_version_id, created_by, created_at`

// Create inserts a new immutable version snapshot
func (r *VersionRepository) Create(ctx context.Context, v *models.WorkflowVersion) error {
	query := `
		INSERT INTO workflow_version (` + versionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		v.ID,
		v.WorkflowID,
		v.BranchID,
		v.Version,
		v.Spec,
		v.ChangeSummary,
		v.ParentVersionID,
		v.CreatedBy,
		v.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create workflow version: %w", err)
	}

	return nil
}

// GetByID retrieves a version by its ID
func (r *VersionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM workflow_version
		WHERE id = $1
	`
	return r.scanVersion(r.db.QueryRow(ctx, query, id), id.String())
}

// GetByWorkflowAndVersion retrieves a version by workflow ID and version string
func (r *VersionRepository) GetByWorkflowAndVersion(ctx context.Context, workflowID uuid.UUID, version string) (*models.WorkflowVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM workflow_version
		WHERE workflow_id = $1 AND version = $2
	`
	return r.scanVersion(r.db.QueryRow(ctx, query, workflowID, version), fmt.Sprintf("%s of workflow %s", version, workflowID))
}

// ListByWorkflow retrieves the version history, newest first
func (r *VersionRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.WorkflowVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM workflow_version
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.WorkflowVersion
	for rows.Next() {
		v := &models.WorkflowVersion{}
		err := rows.Scan(
			&v.ID,
			&v.WorkflowID,
			&v.BranchID,
			&v.Version,
			&v.Spec,
			&v.ChangeSummary,
			&v.ParentVersionID,
			&v.CreatedBy,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow version: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow versions: %w", err)
	}

	return versions, nil
}

// Delete removes a version. Used by the pipeline test stage to clean up
// its dry-run snapshot; real history is never deleted.
func (r *VersionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM workflow_version WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow version: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("version %s: %w", id, ErrNotFound)
	}

	return nil
}

// Exists checks whether a version string is already taken for a workflow
func (r *VersionRepository) Exists(ctx context.Context, workflowID uuid.UUID, version string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM workflow_version WHERE workflow_id = $1 AND version = $2)`

	var exists bool
	err := r.db.QueryRow(ctx, query, workflowID, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check version existence: %w", err)
	}

	return exists, nil
}

func (r *VersionRepository) scanVersion(row pgx.Row, ref string) (*models.WorkflowVersion, error) {
	v := &models.WorkflowVersion{}
	err := row.Scan(
		&v.ID,
		&v.WorkflowID,
		&v.BranchID,
		&v.Version,
		&v.Spec,
		&v.ChangeSummary,
		&v.ParentVersionID,
		&v.CreatedBy,
		&v.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("version %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow version: %w", err)
	}

	return v, nil
}
