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

// RunRepository handles database operations for workflow runs
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *db.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `run_id, workflow_id, version, status, submitted_by, submitted_at, started_at, completed_at`

// Create inserts a new run
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO run (run_id, workflow_id, version, status, submitted_by, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		run.RunID,
		run.WorkflowID,
		run.Version,
		run.Status,
		run.SubmittedBy,
		run.SubmittedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM run
		WHERE run_id = $1
	`

	run := &models.Run{}
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&run.RunID,
		&run.WorkflowID,
		&run.Version,
		&run.Status,
		&run.SubmittedBy,
		&run.SubmittedAt,
		&run.StartedAt,
		&run.CompletedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// CountActive counts in-flight runs for a workflow
func (r *RunRepository) CountActive(ctx context.Context, workflowID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM run
		WHERE workflow_id = $1 AND status = ANY($2)
	`

	statuses := models.ActiveRunStatuses()
	statusStrings := make([]string, len(statuses))
	for i, s := range statuses {
		statusStrings[i] = string(s)
	}

	var count int
	err := r.db.QueryRow(ctx, query, workflowID, statusStrings).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active runs: %w", err)
	}

	return count, nil
}

// ListByWorkflow retrieves runs for a workflow, newest first
func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM run
		WHERE workflow_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run := &models.Run{}
		err := rows.Scan(
			&run.RunID,
			&run.WorkflowID,
			&run.Version,
			&run.Status,
			&run.SubmittedBy,
			&run.SubmittedAt,
			&run.StartedAt,
			&run.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// UpdateStatus transitions a run's status, stamping start/completion times
func (r *RunRepository) UpdateStatus(ctx context.Context, runID uuid.UUID, status models.RunStatus) error {
	query := `
		UPDATE run
		SET status = $2,
		    started_at = CASE WHEN $2 = 'RUNNING' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $2 IN ('COMPLETED', 'FAILED', 'CANCELLED') THEN NOW() ELSE completed_at END
		WHERE run_id = $1
	`

	result, err := r.db.Exec(ctx, query, runID, status)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	return nil
}
