package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/condition"
	"github.com/archonhq/archon/common/config"
	"github.com/archonhq/archon/common/logger"
	"github.com/archonhq/archon/common/spec"
	"github.com/archonhq/archon/common/validation"
)

// PipelineService owns pipeline definitions and runs them stage by stage.
// Stages execute in ascending order and the run halts on the first failed
// stage; stages after the failure never run and produce no result.
type PipelineService struct {
	pipelines   PipelineStore
	workflows   WorkflowStore
	versions    VersionStore
	agents      AgentStore
	deployments DeploymentStore
	artifacts   *ArtifactService
	audits      AuditStore
	events      EventSink
	locker      Locker
	conditions  *condition.Evaluator
	urls        *validation.URLValidator
	agentCache  *agentCache
	cfg         config.PipelineConfig
	log         *logger.Logger
}

// PipelineServiceOpts contains options for creating a PipelineService
type PipelineServiceOpts struct {
	Pipelines   PipelineStore
	Workflows   WorkflowStore
	Versions    VersionStore
	Agents      AgentStore
	Deployments DeploymentStore
	Artifacts   *ArtifactService
	Audits      AuditStore
	Events      EventSink
	Locker      Locker
	Config      config.PipelineConfig
	Logger      *logger.Logger
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(opts *PipelineServiceOpts) *PipelineService {
	return &PipelineService{
		pipelines:   opts.Pipelines,
		workflows:   opts.Workflows,
		versions:    opts.Versions,
		agents:      opts.Agents,
		deployments: opts.Deployments,
		artifacts:   opts.Artifacts,
		audits:      opts.Audits,
		events:      opts.Events,
		locker:      opts.Locker,
		conditions:  condition.NewEvaluator(),
		urls:        validation.NewStaticURLValidator(),
		agentCache:  newAgentCache(agentCacheTTL),
		cfg:         opts.Config,
		log:         opts.Logger,
	}
}

// CreatePipelineRequest carries a new pipeline definition
type CreatePipelineRequest struct {
	WorkflowID uuid.UUID         `json:"workflow_id" validate:"required"`
	Name       string            `json:"name" validate:"required,max=200"`
	Stages     []models.StageDef `json:"stages,omitempty"`
	Actor      *string           `json:"-"`
}

// Create makes a pipeline for a workflow. An empty stage list gets the
// standard lint/test/build/deploy sequence.
func (s *PipelineService) Create(ctx context.Context, req *CreatePipelineRequest) (*models.Pipeline, error) {
	if _, err := s.workflows.GetByID(ctx, req.WorkflowID); err != nil {
		return nil, mapNotFound(err, "workflow", req.WorkflowID.String())
	}

	stages := req.Stages
	if len(stages) == 0 {
		stages = models.DefaultStages()
	}
	stages, err := validateStages(stages)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	pipeline := &models.Pipeline{
		ID:         uuid.New(),
		WorkflowID: req.WorkflowID,
		Name:       req.Name,
		Stages:     stages,
		CreatedBy:  req.Actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.pipelines.Create(ctx, pipeline); err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	writeAudit(ctx, s.audits, s.log, models.AuditPipelineCreated, "workflow", req.WorkflowID.String(), req.Actor, map[string]interface{}{
		"pipeline_id": pipeline.ID.String(),
		"name":        pipeline.Name,
		"stage_count": len(stages),
	})

	s.log.Info("pipeline created", "pipeline_id", pipeline.ID, "workflow_id", req.WorkflowID)
	return pipeline, nil
}

// Get retrieves a pipeline by ID
func (s *PipelineService) Get(ctx context.Context, id uuid.UUID) (*models.Pipeline, error) {
	pipeline, err := s.pipelines.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "pipeline", id.String())
	}
	return pipeline, nil
}

// ListForWorkflow retrieves a workflow's pipelines, newest first
func (s *PipelineService) ListForWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.Pipeline, error) {
	if _, err := s.workflows.GetByID(ctx, workflowID); err != nil {
		return nil, mapNotFound(err, "workflow", workflowID.String())
	}
	return s.pipelines.ListByWorkflow(ctx, workflowID)
}

// Delete removes a pipeline definition
func (s *PipelineService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.pipelines.Delete(ctx, id); err != nil {
		return mapNotFound(err, "pipeline", id.String())
	}
	return nil
}

// ExecutePipelineRequest triggers a pipeline run against a workflow's
// current spec
type ExecutePipelineRequest struct {
	PipelineID uuid.UUID              `json:"pipeline_id" validate:"required"`
	WorkflowID uuid.UUID              `json:"workflow_id" validate:"required"`
	Trigger    string                 `json:"trigger,omitempty"`
	Config     map[string]interface{} `json:"config,omitempty"`
	Actor      *string                `json:"-"`
}

// ExecutePipelineResult is the full run report returned to the caller
type ExecutePipelineResult struct {
	Status     models.PipelineRunStatus `json:"status"`
	DurationMS int64                    `json:"duration_ms"`
	Stages     []models.StageResult     `json:"stages"`
	PipelineID uuid.UUID                `json:"pipeline_id"`
	WorkflowID uuid.UUID                `json:"workflow_id"`
	Timestamp  time.Time                `json:"timestamp"`
}

// Execute runs the pipeline's stages against the workflow's current spec.
// Execution is serialized per workflow through a redis lock; a second
// trigger while a run is in flight is rejected with a conflict.
func (s *PipelineService) Execute(ctx context.Context, req *ExecutePipelineRequest) (*ExecutePipelineResult, error) {
	pipeline, err := s.pipelines.GetByID(ctx, req.PipelineID)
	if err != nil {
		return nil, mapNotFound(err, "pipeline", req.PipelineID.String())
	}
	w, err := s.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, mapNotFound(err, "workflow", req.WorkflowID.String())
	}
	if pipeline.WorkflowID != w.ID {
		return nil, &ValidationError{Reason: "pipeline does not belong to workflow"}
	}

	parsed, err := spec.Parse(w.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow spec: %w", err)
	}

	runID := uuid.New()
	release, err := s.acquireLock(ctx, w.ID, runID)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	stages := sortedStages(pipeline.Stages)
	results := make([]models.StageResult, 0, len(stages))
	failed := false

	for _, def := range stages {
		if def.Skipped() {
			results = append(results, models.StageResult{
				Stage:  def.Type,
				Name:   def.Name,
				Status: models.StageSkipped,
			})
			continue
		}

		stageStart := time.Now()
		result := s.runStage(ctx, def, w, parsed, req)
		result.Stage = def.Type
		result.Name = def.Name
		result.DurationMS = time.Since(stageStart).Milliseconds()
		results = append(results, result)

		if result.Status == models.StageFailed {
			failed = true
			break
		}
	}

	status := models.PipelineSuccess
	if failed {
		status = models.PipelineFailed
	}

	finished := time.Now()
	run := &models.PipelineRun{
		ID:          runID,
		PipelineID:  pipeline.ID,
		WorkflowID:  w.ID,
		Status:      status,
		Stages:      results,
		DurationMS:  finished.Sub(started).Milliseconds(),
		TriggeredBy: req.Actor,
		StartedAt:   started,
		FinishedAt:  finished,
	}

	if err := s.pipelines.UpdateLastRun(ctx, pipeline.ID, run); err != nil {
		s.log.Warn("failed to persist last run", "pipeline_id", pipeline.ID, "error", err)
	}

	stageSummaries := make([]map[string]interface{}, 0, len(results))
	for _, result := range results {
		stageSummaries = append(stageSummaries, map[string]interface{}{
			"stage":       string(result.Stage),
			"status":      string(result.Status),
			"duration_ms": result.DurationMS,
		})
	}
	writeAudit(ctx, s.audits, s.log, models.AuditPipelineExecuted, "workflow", w.ID.String(), req.Actor, map[string]interface{}{
		"pipeline_id": pipeline.ID.String(),
		"run_id":      runID.String(),
		"status":      string(status),
		"trigger":     req.Trigger,
		"duration_ms": run.DurationMS,
		"stages":      stageSummaries,
	})
	s.events.Publish(ctx, EventPipelineCompleted, map[string]interface{}{
		"workflow_id": w.ID.String(),
		"pipeline_id": pipeline.ID.String(),
		"run_id":      runID.String(),
		"status":      string(status),
	})

	s.log.Info("pipeline executed",
		"pipeline_id", pipeline.ID,
		"workflow_id", w.ID,
		"status", status,
		"duration_ms", run.DurationMS,
	)

	return &ExecutePipelineResult{
		Status:     status,
		DurationMS: run.DurationMS,
		Stages:     results,
		PipelineID: pipeline.ID,
		WorkflowID: w.ID,
		Timestamp:  finished,
	}, nil
}

// acquireLock takes the per-workflow execution lock and returns its release
// func. A nil locker disables serialization (single-node test setups).
func (s *PipelineService) acquireLock(ctx context.Context, workflowID, runID uuid.UUID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	key := fmt.Sprintf("pipeline:lock:%s", workflowID)
	acquired, err := s.locker.SetNX(ctx, key, runID.String(), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire pipeline lock: %w", err)
	}
	if !acquired {
		return nil, &ConflictError{Reason: "a pipeline is already running for this workflow"}
	}

	release := func() {
		if err := s.locker.Delete(ctx, key); err != nil {
			s.log.Warn("failed to release pipeline lock", "key", key, "error", err)
		}
	}
	return release, nil
}

// validateStages normalizes a stage list: known types only, orders unique
// and ascending, names defaulting to the stage type
func validateStages(stages []models.StageDef) ([]models.StageDef, error) {
	known := make(map[models.PipelineStage]bool)
	for _, t := range models.StageOrder() {
		known[t] = true
	}

	out := make([]models.StageDef, len(stages))
	copy(out, stages)

	lastOrder := 0
	for i := range out {
		if !known[out[i].Type] {
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown stage type %q", out[i].Type)}
		}
		if out[i].Order <= lastOrder {
			return nil, &ValidationError{Reason: "stage orders must be unique and ascending"}
		}
		lastOrder = out[i].Order
		if out[i].Name == "" {
			out[i].Name = string(out[i].Type)
		}
	}
	return out, nil
}

func sortedStages(stages []models.StageDef) []models.StageDef {
	out := make([]models.StageDef, len(stages))
	copy(out, stages)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
