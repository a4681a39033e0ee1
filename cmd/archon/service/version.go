package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/diff"
	"github.com/archonhq/archon/common/logger"
	"github.com/archonhq/archon/common/merge"
	"github.com/archonhq/archon/common/spec"
)

// VersionService reads version history, diffs versions against each other
// and rolls a workflow back to an earlier version
type VersionService struct {
	versions    VersionStore
	workflows   WorkflowStore
	branches    BranchStore
	runs        RunStore
	deployments DeploymentStore
	audits      AuditStore
	events      EventSink
	log         *logger.Logger
}

// VersionServiceOpts contains options for creating a VersionService
type VersionServiceOpts struct {
	Versions    VersionStore
	Workflows   WorkflowStore
	Branches    BranchStore
	Runs        RunStore
	Deployments DeploymentStore
	Audits      AuditStore
	Events      EventSink
	Logger      *logger.Logger
}

// NewVersionService creates a new version service
func NewVersionService(opts *VersionServiceOpts) *VersionService {
	return &VersionService{
		versions:    opts.Versions,
		workflows:   opts.Workflows,
		branches:    opts.Branches,
		runs:        opts.Runs,
		deployments: opts.Deployments,
		audits:      opts.Audits,
		events:      opts.Events,
		log:         opts.Logger,
	}
}

// Get retrieves a version by ID
func (s *VersionService) Get(ctx context.Context, id uuid.UUID) (*models.WorkflowVersion, error) {
	v, err := s.versions.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "version", id.String())
	}
	return v, nil
}

// ListHistory retrieves a workflow's versions, newest first
func (s *VersionService) ListHistory(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.WorkflowVersion, error) {
	if _, err := s.workflows.GetByID(ctx, workflowID); err != nil {
		return nil, mapNotFound(err, "workflow", workflowID.String())
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.versions.ListByWorkflow(ctx, workflowID, limit)
}

// ListDeployments retrieves a workflow's deployment history, newest first.
// With activeOnly set, only the current live deployment is returned.
func (s *VersionService) ListDeployments(ctx context.Context, workflowID uuid.UUID, limit int, activeOnly bool) ([]*models.Deployment, error) {
	if _, err := s.workflows.GetByID(ctx, workflowID); err != nil {
		return nil, mapNotFound(err, "workflow", workflowID.String())
	}

	if activeOnly {
		d, err := s.deployments.GetActiveByWorkflow(ctx, workflowID)
		if err != nil {
			return nil, mapNotFound(err, "active deployment for workflow", workflowID.String())
		}
		return []*models.Deployment{d}, nil
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.deployments.ListByWorkflow(ctx, workflowID, limit)
}

// CompareRequest names the two versions to diff
type CompareRequest struct {
	VersionIDA uuid.UUID `json:"version_id_a" validate:"required"`
	VersionIDB uuid.UUID `json:"version_id_b" validate:"required"`
}

// VersionRef is the version metadata echoed back by Compare. The spec
// content itself is represented by the diff, not repeated here.
type VersionRef struct {
	ID            uuid.UUID `json:"id"`
	WorkflowID    uuid.UUID `json:"workflow_id"`
	Version       string    `json:"version"`
	ChangeSummary *string   `json:"change_summary,omitempty"`
	CreatedBy     *string   `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CompareResult carries both version refs plus the structural diff from A to B
type CompareResult struct {
	VersionA VersionRef `json:"version_a"`
	VersionB VersionRef `json:"version_b"`
	Diff     *diff.Diff `json:"diff"`
}

// Compare diffs version A against version B. The two versions may belong to
// different workflows; the diff is purely structural.
func (s *VersionService) Compare(ctx context.Context, req *CompareRequest) (*CompareResult, error) {
	a, err := s.Get(ctx, req.VersionIDA)
	if err != nil {
		return nil, err
	}
	b, err := s.Get(ctx, req.VersionIDB)
	if err != nil {
		return nil, err
	}

	specA, err := spec.Parse(a.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spec of version %s: %w", a.ID, err)
	}
	specB, err := spec.Parse(b.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spec of version %s: %w", b.ID, err)
	}

	d, err := diff.Compute(specA, specB)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}

	return &CompareResult{
		VersionA: versionRef(a),
		VersionB: versionRef(b),
		Diff:     d,
	}, nil
}

func versionRef(v *models.WorkflowVersion) VersionRef {
	return VersionRef{
		ID:            v.ID,
		WorkflowID:    v.WorkflowID,
		Version:       v.Version,
		ChangeSummary: v.ChangeSummary,
		CreatedBy:     v.CreatedBy,
		CreatedAt:     v.CreatedAt,
	}
}

// RollbackRequest asks for a workflow to be reset to an earlier version
type RollbackRequest struct {
	WorkflowID    uuid.UUID `json:"workflow_id" validate:"required"`
	TargetVersion string    `json:"target_version" validate:"required"`
	Reason        string    `json:"reason" validate:"required"`
	Actor         *string   `json:"-"`
}

// RollbackResult reports the version transition
type RollbackResult struct {
	Success         bool   `json:"success"`
	PreviousVersion string `json:"previous_version"`
	CurrentVersion  string `json:"current_version"`
	Status          string `json:"status"`
}

// Rollback resets a workflow's spec to target_version. The current spec is
// snapshotted as a backup version first, the workflow drops back to draft
// status, the default branch head moves to the target version, and any
// active deployment is marked rolled back. Refused while runs are in
// flight.
func (s *VersionService) Rollback(ctx context.Context, req *RollbackRequest) (*RollbackResult, error) {
	w, err := s.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, mapNotFound(err, "workflow", req.WorkflowID.String())
	}

	target, err := s.versions.GetByWorkflowAndVersion(ctx, req.WorkflowID, req.TargetVersion)
	if err != nil {
		return nil, mapNotFound(err, "version", req.TargetVersion)
	}

	if target.Version == w.Version {
		return nil, &ValidationError{Reason: fmt.Sprintf("workflow is already at version %s", target.Version)}
	}

	active, err := s.runs.CountActive(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active runs: %w", err)
	}
	if active > 0 {
		return nil, &ConflictError{Reason: fmt.Sprintf("cannot rollback: %d active run(s) in progress", active)}
	}

	branch, err := s.branches.GetDefault(ctx, req.WorkflowID)
	if err != nil {
		return nil, mapNotFound(err, "default branch of workflow", req.WorkflowID.String())
	}

	backup, err := snapshotVersion(ctx, s.versions, w, branch.HeadVersionID, fmt.Sprintf("Pre-rollback backup: %s", req.Reason), req.Actor)
	if err != nil {
		return nil, err
	}

	swapped, err := s.branches.CompareAndSwapHead(ctx, branch.ID, branch.RowVersion, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to move branch head: %w", err)
	}
	if !swapped {
		return nil, &ConflictError{Reason: "workflow was modified concurrently, retry rollback"}
	}

	previousVersion := w.Version
	swapped, err = s.workflows.CompareAndSwapSpec(ctx, w.ID, w.RowVersion, target.Spec, target.Version, models.WorkflowStatusDraft)
	if err != nil {
		return nil, fmt.Errorf("failed to reset workflow spec: %w", err)
	}
	if !swapped {
		return nil, &ConflictError{Reason: "workflow was modified concurrently, retry rollback"}
	}

	rolledBack, err := s.deployments.MarkRolledBack(ctx, req.WorkflowID)
	if err != nil {
		s.log.Warn("failed to mark deployments rolled back", "workflow_id", req.WorkflowID, "error", err)
	} else if rolledBack > 0 {
		s.log.Info("deployments marked rolled back", "workflow_id", req.WorkflowID, "count", rolledBack)
	}

	writeAudit(ctx, s.audits, s.log, models.AuditWorkflowRolledBack, "workflow", w.ID.String(), req.Actor, map[string]interface{}{
		"from_version":   previousVersion,
		"to_version":     target.Version,
		"backup_version": backup.Version,
		"reason":         req.Reason,
	})
	s.events.Publish(ctx, EventWorkflowRolledBack, map[string]interface{}{
		"workflow_id":  w.ID.String(),
		"from_version": previousVersion,
		"to_version":   target.Version,
	})

	s.log.Info("workflow rolled back",
		"workflow_id", w.ID,
		"from_version", previousVersion,
		"to_version", target.Version,
	)

	return &RollbackResult{
		Success:         true,
		PreviousVersion: previousVersion,
		CurrentVersion:  target.Version,
		Status:          string(models.WorkflowStatusDraft),
	}, nil
}

// snapshotVersion stores the workflow's current spec as an immutable backup
// version outside any branch lineage. Patch numbers are bumped until a free
// version string is found.
func snapshotVersion(ctx context.Context, versions VersionStore, w *models.Workflow, parent *uuid.UUID, summary string, actor *string) (*models.WorkflowVersion, error) {
	candidate := w.Version
	for {
		next, err := merge.BumpPatch(candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to bump version %q: %w", candidate, err)
		}
		candidate = next

		taken, err := versions.Exists(ctx, w.ID, candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to check version %q: %w", candidate, err)
		}
		if !taken {
			break
		}
	}

	backup := &models.WorkflowVersion{
		ID:              uuid.New(),
		WorkflowID:      w.ID,
		Version:         candidate,
		Spec:            w.Spec,
		ChangeSummary:   &summary,
		ParentVersionID: parent,
		CreatedBy:       actor,
		CreatedAt:       time.Now(),
	}
	if err := versions.Create(ctx, backup); err != nil {
		return nil, fmt.Errorf("failed to create backup version: %w", err)
	}
	return backup, nil
}

// nextFreeMinor bumps the minor version until the candidate is unused by
// the workflow. A single bump is the normal case; rollbacks and cross-branch
// merges can leave later version strings taken.
func nextFreeMinor(ctx context.Context, versions VersionStore, workflowID uuid.UUID, from string) (string, error) {
	candidate := from
	for {
		next, err := merge.BumpMinor(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to bump version %q: %w", candidate, err)
		}
		candidate = next

		taken, err := versions.Exists(ctx, workflowID, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check version %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
}
