package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/logger"
	"github.com/archonhq/archon/common/spec"
	"github.com/archonhq/archon/common/validation"
)

// DefaultBranchName is the branch every workflow starts with
const DefaultBranchName = "main"

// initialVersion is the version string of a freshly created workflow
const initialVersion = "1.0.0"

var emptySpec = json.RawMessage(`{"nodes":[],"edges":[]}`)

// WorkflowService handles workflow lifecycle and spec saves
type WorkflowService struct {
	workflows WorkflowStore
	versions  VersionStore
	branches  BranchStore
	audits    AuditStore
	events    EventSink
	patches   *validation.PatchValidator
	log       *logger.Logger
}

// WorkflowServiceOpts contains options for creating a WorkflowService
type WorkflowServiceOpts struct {
	Workflows WorkflowStore
	Versions  VersionStore
	Branches  BranchStore
	Audits    AuditStore
	Events    EventSink
	Logger    *logger.Logger
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(opts *WorkflowServiceOpts) *WorkflowService {
	return &WorkflowService{
		workflows: opts.Workflows,
		versions:  opts.Versions,
		branches:  opts.Branches,
		audits:    opts.Audits,
		events:    opts.Events,
		patches:   validation.NewPatchValidator(),
		log:       opts.Logger,
	}
}

// CreateWorkflowRequest carries a new workflow definition
type CreateWorkflowRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description *string         `json:"description,omitempty"`
	Spec        json.RawMessage `json:"spec,omitempty"`
	Actor       *string         `json:"-"`
}

// Create makes a workflow together with its initial version and default
// branch. The workflow starts as a draft at version 1.0.0.
func (s *WorkflowService) Create(ctx context.Context, req *CreateWorkflowRequest) (*models.Workflow, error) {
	raw := req.Spec
	if len(raw) == 0 {
		raw = emptySpec
	}

	if _, err := s.parseAndCheck(raw); err != nil {
		return nil, err
	}

	now := time.Now()
	w := &models.Workflow{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Status:      models.WorkflowStatusDraft,
		Spec:        raw,
		Version:     initialVersion,
		RowVersion:  1,
		CreatedBy:   req.Actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.workflows.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	summary := "Initial version"
	version := &models.WorkflowVersion{
		ID:            uuid.New(),
		WorkflowID:    w.ID,
		Version:       initialVersion,
		Spec:          raw,
		ChangeSummary: &summary,
		CreatedBy:     req.Actor,
		CreatedAt:     now,
	}
	if err := s.versions.Create(ctx, version); err != nil {
		return nil, fmt.Errorf("failed to create initial version: %w", err)
	}

	branch := &models.WorkflowBranch{
		ID:            uuid.New(),
		WorkflowID:    w.ID,
		Name:          DefaultBranchName,
		HeadVersionID: &version.ID,
		IsDefault:     true,
		Status:        models.BranchStatusActive,
		RowVersion:    1,
		CreatedBy:     req.Actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.branches.Create(ctx, branch); err != nil {
		return nil, fmt.Errorf("failed to create default branch: %w", err)
	}

	writeAudit(ctx, s.audits, s.log, models.AuditWorkflowCreated, "workflow", w.ID.String(), req.Actor, map[string]interface{}{
		"name":    w.Name,
		"version": w.Version,
	})
	s.events.Publish(ctx, EventWorkflowCreated, map[string]interface{}{
		"workflow_id": w.ID.String(),
		"version":     w.Version,
	})

	s.log.Info("workflow created", "workflow_id", w.ID, "name", w.Name)
	return w, nil
}

// Get retrieves a workflow by ID
func (s *WorkflowService) Get(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	w, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "workflow", id.String())
	}
	return w, nil
}

// List retrieves workflows ordered by most recently updated
func (s *WorkflowService) List(ctx context.Context, limit, offset int) ([]*models.Workflow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.workflows.List(ctx, limit, offset)
}

// UpdateWorkflowRequest carries metadata changes
type UpdateWorkflowRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Actor       *string `json:"-"`
}

// UpdateMeta changes workflow name and description without touching the spec
func (s *WorkflowService) UpdateMeta(ctx context.Context, id uuid.UUID, req *UpdateWorkflowRequest) (*models.Workflow, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, &ValidationError{Reason: "name cannot be empty"}
		}
		w.Name = *req.Name
	}
	if req.Description != nil {
		w.Description = req.Description
	}

	if err := s.workflows.UpdateMeta(ctx, w); err != nil {
		return nil, mapNotFound(err, "workflow", id.String())
	}

	writeAudit(ctx, s.audits, s.log, models.AuditWorkflowUpdated, "workflow", w.ID.String(), req.Actor, map[string]interface{}{
		"name": w.Name,
	})

	return w, nil
}

// SaveSpecRequest carries a full replacement spec
type SaveSpecRequest struct {
	Spec          json.RawMessage `json:"spec" validate:"required"`
	ChangeSummary string          `json:"change_summary,omitempty"`
	Actor         *string         `json:"-"`
}

// SaveSpec stores a new spec as the next minor version and advances the
// default branch head
func (s *WorkflowService) SaveSpec(ctx context.Context, workflowID uuid.UUID, req *SaveSpecRequest) (*models.WorkflowVersion, error) {
	w, err := s.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if _, err := s.parseAndCheck(req.Spec); err != nil {
		return nil, err
	}

	summary := req.ChangeSummary
	if summary == "" {
		summary = "Spec updated"
	}

	return s.commitSpec(ctx, w, req.Spec, summary, req.Actor)
}

// PatchSpecRequest carries JSON Patch operations against the current spec
type PatchSpecRequest struct {
	Operations    []map[string]interface{} `json:"operations" validate:"required,min=1"`
	ChangeSummary string                   `json:"change_summary,omitempty"`
	Actor         *string                  `json:"-"`
}

// PatchSpec applies RFC 6902 operations to the current spec and commits the
// result as the next minor version
func (s *WorkflowService) PatchSpec(ctx context.Context, workflowID uuid.UUID, req *PatchSpecRequest) (*models.WorkflowVersion, error) {
	w, err := s.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := s.patches.ValidateOperations(req.Operations); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	patchJSON, err := json.Marshal(req.Operations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch operations: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid patch: %v", err)}
	}

	patched, err := patch.Apply(w.Spec)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("cannot apply patch: %v", err)}
	}

	if _, err := s.parseAndCheck(patched); err != nil {
		return nil, err
	}

	summary := req.ChangeSummary
	if summary == "" {
		summary = fmt.Sprintf("Spec patched (%d operations)", len(req.Operations))
	}

	return s.commitSpec(ctx, w, patched, summary, req.Actor)
}

// Delete removes a workflow and its dependent rows
func (s *WorkflowService) Delete(ctx context.Context, id uuid.UUID, actor *string) error {
	if err := s.workflows.Delete(ctx, id); err != nil {
		return mapNotFound(err, "workflow", id.String())
	}

	writeAudit(ctx, s.audits, s.log, models.AuditWorkflowDeleted, "workflow", id.String(), actor, nil)

	s.log.Info("workflow deleted", "workflow_id", id)
	return nil
}

// parseAndCheck parses a raw spec and rejects structural problems that must
// never reach storage: malformed JSON, duplicate node ids, cycles
func (s *WorkflowService) parseAndCheck(raw json.RawMessage) (*spec.WorkflowSpec, error) {
	parsed, err := spec.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid spec: %v", err)}
	}
	if err := parsed.Validate(); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	if spec.HasCycle(parsed) {
		return nil, &ValidationError{Reason: fmt.Sprintf("spec contains a cycle through node %q", spec.FirstCycleNode(parsed))}
	}
	return parsed, nil
}

// commitSpec writes a new version for an already-validated spec, advances
// the default branch head and swaps the denormalized workflow fields, all
// guarded by optimistic locks
func (s *WorkflowService) commitSpec(ctx context.Context, w *models.Workflow, raw json.RawMessage, summary string, actor *string) (*models.WorkflowVersion, error) {
	branch, err := s.branches.GetDefault(ctx, w.ID)
	if err != nil {
		return nil, mapNotFound(err, "default branch of workflow", w.ID.String())
	}

	nextVersion, err := nextFreeMinor(ctx, s.versions, w.ID, w.Version)
	if err != nil {
		return nil, err
	}

	version := &models.WorkflowVersion{
		ID:              uuid.New(),
		WorkflowID:      w.ID,
		BranchID:        &branch.ID,
		Version:         nextVersion,
		Spec:            raw,
		ChangeSummary:   &summary,
		ParentVersionID: branch.HeadVersionID,
		CreatedBy:       actor,
		CreatedAt:       time.Now(),
	}
	if err := s.versions.Create(ctx, version); err != nil {
		return nil, fmt.Errorf("failed to create version: %w", err)
	}

	swapped, err := s.branches.CompareAndSwapHead(ctx, branch.ID, branch.RowVersion, version.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to advance branch head: %w", err)
	}
	if !swapped {
		return nil, &ConflictError{Reason: "workflow was modified concurrently, retry"}
	}

	swapped, err = s.workflows.CompareAndSwapSpec(ctx, w.ID, w.RowVersion, raw, nextVersion, w.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow spec: %w", err)
	}
	if !swapped {
		return nil, &ConflictError{Reason: "workflow was modified concurrently, retry"}
	}

	writeAudit(ctx, s.audits, s.log, models.AuditWorkflowUpdated, "workflow", w.ID.String(), actor, map[string]interface{}{
		"version": nextVersion,
		"summary": summary,
	})

	s.log.Info("workflow spec saved", "workflow_id", w.ID, "version", nextVersion)
	return version, nil
}
