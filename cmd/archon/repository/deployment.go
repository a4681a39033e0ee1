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

// DeploymentRepository handles database operations for deployments
type DeploymentRepository struct {
	db *db.DB
}

// NewDeploymentRepository creates a new deployment repository
func NewDeploymentRepository(db *db.DB) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

const deploymentColumns = `id, workflow_id, environment, version, version_id, url, status, deployed_by, deployed_at`

// Create inserts a deployment, marking any previous active deployment of
// the workflow in the same environment superseded in one transaction
func (r *DeploymentRepository) Create(ctx context.Context, d *models.Deployment) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		supersede := `
			UPDATE deployment
			SET status = $3
			WHERE workflow_id = $1 AND environment = $2 AND status = $4
		`
		if _, err := tx.Exec(ctx, supersede, d.WorkflowID, d.Environment, models.DeploymentSuperseded, models.DeploymentActive); err != nil {
			return fmt.Errorf("failed to supersede previous deployment: %w", err)
		}

		insert := `
			INSERT INTO deployment (` + deploymentColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err := tx.Exec(ctx, insert,
			d.ID,
			d.WorkflowID,
			d.Environment,
			d.Version,
			d.VersionID,
			d.URL,
			d.Status,
			d.DeployedBy,
			d.DeployedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create deployment: %w", err)
		}
		return nil
	})
}

// GetActiveByWorkflow retrieves the most recent active deployment across
// environments
func (r *DeploymentRepository) GetActiveByWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployment
		WHERE workflow_id = $1 AND status = $2
		ORDER BY deployed_at DESC
		LIMIT 1
	`

	d := &models.Deployment{}
	err := r.db.QueryRow(ctx, query, workflowID, models.DeploymentActive).Scan(
		&d.ID,
		&d.WorkflowID,
		&d.Environment,
		&d.Version,
		&d.VersionID,
		&d.URL,
		&d.Status,
		&d.DeployedBy,
		&d.DeployedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("active deployment for workflow %s: %w", workflowID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active deployment: %w", err)
	}

	return d, nil
}

// MarkRolledBack flips all active deployments of a workflow to rolled_back.
// Returns the number of deployments affected.
func (r *DeploymentRepository) MarkRolledBack(ctx context.Context, workflowID uuid.UUID) (int64, error) {
	query := `
		UPDATE deployment
		SET status = $2
		WHERE workflow_id = $1 AND status = $3
	`

	result, err := r.db.Exec(ctx, query, workflowID, models.DeploymentRolledBack, models.DeploymentActive)
	if err != nil {
		return 0, fmt.Errorf("failed to mark deployments rolled back: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListByWorkflow retrieves deployment history, newest first
func (r *DeploymentRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployment
		WHERE workflow_id = $1
		ORDER BY deployed_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var deployments []*models.Deployment
	for rows.Next() {
		d := &models.Deployment{}
		err := rows.Scan(
			&d.ID,
			&d.WorkflowID,
			&d.Environment,
			&d.Version,
			&d.VersionID,
			&d.URL,
			&d.Status,
			&d.DeployedBy,
			&d.DeployedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}

	return deployments, nil
}
