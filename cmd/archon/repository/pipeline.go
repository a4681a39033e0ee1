package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/db"
)

// PipelineRepository handles database operations for pipelines
type PipelineRepository struct {
	db *db.DB
}

// NewPipelineRepository creates a new pipeline repository
func NewPipelineRepository(db *db.DB) *PipelineRepository {
	return &PipelineRepository{db: db}
}

const pipelineColumns = `id, workflow_id, name, stages, last_run, created_by, created_at, updated_at`

// Create inserts a pipeline with its stage definitions as JSONB
func (r *PipelineRepository) Create(ctx context.Context, p *models.Pipeline) error {
	stages, err := json.Marshal(p.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stage definitions: %w", err)
	}

	query := `
		INSERT INTO pipeline (id, workflow_id, name, stages, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.Exec(ctx, query,
		p.ID,
		p.WorkflowID,
		p.Name,
		stages,
		p.CreatedBy,
		p.CreatedAt,
		p.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	return nil
}

// GetByID retrieves a pipeline by ID
func (r *PipelineRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipeline WHERE id = $1`
	return r.scanPipeline(r.db.QueryRow(ctx, query, id), id.String())
}

// GetByWorkflow retrieves the most recently created pipeline for a workflow
func (r *PipelineRepository) GetByWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.Pipeline, error) {
	query := `
		SELECT ` + pipelineColumns + `
		FROM pipeline
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanPipeline(r.db.QueryRow(ctx, query, workflowID), workflowID.String())
}

// ListByWorkflow retrieves all pipelines for a workflow, newest first
func (r *PipelineRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.Pipeline, error) {
	query := `
		SELECT ` + pipelineColumns + `
		FROM pipeline
		WHERE workflow_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []*models.Pipeline
	for rows.Next() {
		p, err := r.scanPipelineRow(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipelines: %w", err)
	}

	return pipelines, nil
}

// UpdateLastRun stores the summary of the latest invocation on the pipeline row
func (r *PipelineRepository) UpdateLastRun(ctx context.Context, id uuid.UUID, run *models.PipelineRun) error {
	lastRun, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	query := `
		UPDATE pipeline
		SET last_run = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, lastRun, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update last run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}

	return nil
}

// Delete removes a pipeline
func (r *PipelineRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM pipeline WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pipeline: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}

	return nil
}

func (r *PipelineRepository) scanPipeline(row pgx.Row, ref string) (*models.Pipeline, error) {
	p := &models.Pipeline{}
	var stages []byte
	var lastRun []byte

	err := row.Scan(
		&p.ID,
		&p.WorkflowID,
		&p.Name,
		&stages,
		&lastRun,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pipeline %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}

	if err := json.Unmarshal(stages, &p.Stages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stage definitions: %w", err)
	}
	if len(lastRun) > 0 {
		p.LastRun = &models.PipelineRun{}
		if err := json.Unmarshal(lastRun, p.LastRun); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
		}
	}

	return p, nil
}

func (r *PipelineRepository) scanPipelineRow(rows pgx.Rows) (*models.Pipeline, error) {
	p := &models.Pipeline{}
	var stages []byte
	var lastRun []byte

	err := rows.Scan(
		&p.ID,
		&p.WorkflowID,
		&p.Name,
		&stages,
		&lastRun,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan pipeline: %w", err)
	}

	if err := json.Unmarshal(stages, &p.Stages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stage definitions: %w", err)
	}
	if len(lastRun) > 0 {
		p.LastRun = &models.PipelineRun{}
		if err := json.Unmarshal(lastRun, p.LastRun); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
		}
	}

	return p, nil
}
