package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/logger"
)

// RunService tracks run bookkeeping. A workflow with in-flight runs cannot
// be rolled back, so run state gates the version service.
type RunService struct {
	runs      RunStore
	workflows WorkflowStore
	log       *logger.Logger
}

// NewRunService creates a new run service
func NewRunService(runs RunStore, workflows WorkflowStore, log *logger.Logger) *RunService {
	return &RunService{
		runs:      runs,
		workflows: workflows,
		log:       log,
	}
}

// SubmitRunRequest queues a run of a workflow's current version
type SubmitRunRequest struct {
	WorkflowID uuid.UUID `json:"workflow_id" validate:"required"`
	Actor      *string   `json:"-"`
}

// Submit queues a run pinned to the workflow's current version
func (s *RunService) Submit(ctx context.Context, req *SubmitRunRequest) (*models.Run, error) {
	w, err := s.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, mapNotFound(err, "workflow", req.WorkflowID.String())
	}

	run := &models.Run{
		RunID:       uuid.New(),
		WorkflowID:  w.ID,
		Version:     w.Version,
		Status:      models.StatusQueued,
		SubmittedBy: req.Actor,
		SubmittedAt: time.Now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.log.Info("run submitted", "run_id", run.RunID, "workflow_id", w.ID, "version", run.Version)
	return run, nil
}

// Get retrieves a run by ID
func (s *RunService) Get(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, mapNotFound(err, "run", runID.String())
	}
	return run, nil
}

// ListForWorkflow retrieves a workflow's runs, newest first
func (s *RunService) ListForWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.Run, error) {
	if _, err := s.workflows.GetByID(ctx, workflowID); err != nil {
		return nil, mapNotFound(err, "workflow", workflowID.String())
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.runs.ListByWorkflow(ctx, workflowID, limit)
}

// UpdateStatus transitions a run. Start and completion timestamps are
// stamped by the store.
func (s *RunService) UpdateStatus(ctx context.Context, runID uuid.UUID, status models.RunStatus) (*models.Run, error) {
	switch status {
	case models.StatusQueued, models.StatusRunning, models.StatusWaitingForApproval,
		models.StatusCompleted, models.StatusFailed, models.StatusCancelled:
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown run status %q", status)}
	}

	if err := s.runs.UpdateStatus(ctx, runID, status); err != nil {
		return nil, mapNotFound(err, "run", runID.String())
	}

	s.log.Info("run status updated", "run_id", runID, "status", status)
	return s.Get(ctx, runID)
}
