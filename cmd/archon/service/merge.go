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
	"github.com/archonhq/archon/common/merge"
	"github.com/archonhq/archon/common/spec"
)

// MergeService reconciles one branch head into another and commits the
// result as a new version
type MergeService struct {
	branches  BranchStore
	versions  VersionStore
	workflows WorkflowStore
	audits    AuditStore
	events    EventSink
	log       *logger.Logger
}

// MergeServiceOpts contains options for creating a MergeService
type MergeServiceOpts struct {
	Branches  BranchStore
	Versions  VersionStore
	Workflows WorkflowStore
	Audits    AuditStore
	Events    EventSink
	Logger    *logger.Logger
}

// NewMergeService creates a new merge service
func NewMergeService(opts *MergeServiceOpts) *MergeService {
	return &MergeService{
		branches:  opts.Branches,
		versions:  opts.Versions,
		workflows: opts.Workflows,
		audits:    opts.Audits,
		events:    opts.Events,
		log:       opts.Logger,
	}
}

// MergeBranchesRequest asks for the source branch head to be merged into
// the target branch head
type MergeBranchesRequest struct {
	SourceBranchID     uuid.UUID         `json:"source_branch_id" validate:"required"`
	TargetBranchID     uuid.UUID         `json:"target_branch_id" validate:"required"`
	MergeStrategy      string            `json:"merge_strategy,omitempty"`
	ConflictResolution *merge.Resolution `json:"conflict_resolution,omitempty"`
	Actor              *string           `json:"-"`
}

// MergeBranchesResult reports a committed merge
type MergeBranchesResult struct {
	Status            string `json:"status"`
	MergedVersion     string `json:"merged_version"`
	ConflictsResolved int    `json:"conflicts_resolved"`
}

// MergeBranches merges the source branch head into the target branch head.
// Unresolved conflicts reject the merge outright: no version is created and
// no head moves. On success the target branch gains a new minor version,
// the workflow's denormalized spec follows it, and, when the target is the
// default branch, the source branch is marked merged.
func (s *MergeService) MergeBranches(ctx context.Context, req *MergeBranchesRequest) (*MergeBranchesResult, error) {
	source, err := s.branches.GetByID(ctx, req.SourceBranchID)
	if err != nil {
		return nil, mapNotFound(err, "branch", req.SourceBranchID.String())
	}
	target, err := s.branches.GetByID(ctx, req.TargetBranchID)
	if err != nil {
		return nil, mapNotFound(err, "branch", req.TargetBranchID.String())
	}

	if source.ID == target.ID {
		return nil, &ValidationError{Reason: "cannot merge a branch into itself"}
	}
	if source.WorkflowID != target.WorkflowID {
		return nil, &ValidationError{Reason: "branches belong to different workflows"}
	}

	// Protection is checked before any further loads or writes so a
	// protected target rejects the merge with zero side effects.
	if target.IsProtected {
		return nil, &ForbiddenError{Reason: fmt.Sprintf("branch %q is protected", target.Name)}
	}

	if source.HeadVersionID == nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("branch %q has no head version", source.Name)}
	}
	if target.HeadVersionID == nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("branch %q has no head version", target.Name)}
	}

	w, err := s.workflows.GetByID(ctx, target.WorkflowID)
	if err != nil {
		return nil, mapNotFound(err, "workflow", target.WorkflowID.String())
	}

	sourceHead, err := s.versions.GetByID(ctx, *source.HeadVersionID)
	if err != nil {
		return nil, mapNotFound(err, "version", source.HeadVersionID.String())
	}
	targetHead, err := s.versions.GetByID(ctx, *target.HeadVersionID)
	if err != nil {
		return nil, mapNotFound(err, "version", target.HeadVersionID.String())
	}

	sourceSpec, err := spec.Parse(sourceHead.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spec of version %s: %w", sourceHead.ID, err)
	}
	targetSpec, err := spec.Parse(targetHead.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spec of version %s: %w", targetHead.ID, err)
	}

	result := merge.Merge(sourceSpec, targetSpec, merge.ParseStrategy(req.MergeStrategy), req.ConflictResolution)
	if len(result.Conflicts) > 0 {
		return nil, &MergeConflictError{Conflicts: result.Conflicts}
	}

	mergedRaw, err := json.Marshal(result.MergedSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged spec: %w", err)
	}

	nextVersion, err := nextFreeMinor(ctx, s.versions, target.WorkflowID, targetHead.Version)
	if err != nil {
		return nil, err
	}

	// The commit overwrites the workflow's working spec. If that spec has
	// drifted from the target head, snapshot it first so nothing is lost.
	if !jsonpatch.Equal(w.Spec, targetHead.Spec) {
		if _, err := snapshotVersion(ctx, s.versions, w, target.HeadVersionID, "Pre-merge backup", req.Actor); err != nil {
			return nil, err
		}
	}

	summary := fmt.Sprintf("Merged branch %q into %q", source.Name, target.Name)
	mergedVersion := &models.WorkflowVersion{
		ID:              uuid.New(),
		WorkflowID:      target.WorkflowID,
		BranchID:        &target.ID,
		Version:         nextVersion,
		Spec:            mergedRaw,
		ChangeSummary:   &summary,
		ParentVersionID: target.HeadVersionID,
		CreatedBy:       req.Actor,
		CreatedAt:       time.Now(),
	}
	if err := s.versions.Create(ctx, mergedVersion); err != nil {
		return nil, fmt.Errorf("failed to create merged version: %w", err)
	}

	swapped, err := s.branches.CompareAndSwapHead(ctx, target.ID, target.RowVersion, mergedVersion.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to advance target branch head: %w", err)
	}
	if !swapped {
		return nil, &ConflictError{Reason: "target branch advanced concurrently, retry merge"}
	}

	swapped, err = s.workflows.CompareAndSwapSpec(ctx, w.ID, w.RowVersion, mergedRaw, nextVersion, w.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow spec: %w", err)
	}
	if !swapped {
		return nil, &ConflictError{Reason: "workflow was modified concurrently, retry merge"}
	}

	if target.IsDefault {
		if err := s.branches.MarkMerged(ctx, source.ID, req.Actor); err != nil {
			s.log.Warn("failed to mark source branch merged", "branch_id", source.ID, "error", err)
		}
	}

	writeAudit(ctx, s.audits, s.log, models.AuditBranchMerged, "workflow", target.WorkflowID.String(), req.Actor, map[string]interface{}{
		"source_branch":      source.Name,
		"target_branch":      target.Name,
		"merged_version":     nextVersion,
		"conflicts_resolved": result.Resolved,
		"strategy":           string(merge.ParseStrategy(req.MergeStrategy)),
	})
	s.events.Publish(ctx, EventWorkflowMerged, map[string]interface{}{
		"workflow_id":      target.WorkflowID.String(),
		"source_branch_id": source.ID.String(),
		"target_branch_id": target.ID.String(),
		"merged_version":   nextVersion,
	})

	s.log.Info("merged branches",
		"workflow_id", target.WorkflowID,
		"source", source.Name,
		"target", target.Name,
		"version", nextVersion,
	)

	return &MergeBranchesResult{
		Status:            "success",
		MergedVersion:     nextVersion,
		ConflictsResolved: result.Resolved,
	}, nil
}
