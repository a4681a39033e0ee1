package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/cmd/archon/repository"
	"github.com/archonhq/archon/common/logger"
)

// BranchService manages named lines of development for a workflow
type BranchService struct {
	branches  BranchStore
	workflows WorkflowStore
	versions  VersionStore
	audits    AuditStore
	log       *logger.Logger
}

// NewBranchService creates a new branch service
func NewBranchService(branches BranchStore, workflows WorkflowStore, versions VersionStore, audits AuditStore, log *logger.Logger) *BranchService {
	return &BranchService{
		branches:  branches,
		workflows: workflows,
		versions:  versions,
		audits:    audits,
		log:       log,
	}
}

// CreateBranchRequest carries a new branch definition
type CreateBranchRequest struct {
	WorkflowID    uuid.UUID  `json:"workflow_id" validate:"required"`
	Name          string     `json:"name" validate:"required,max=100"`
	FromVersionID *uuid.UUID `json:"from_version_id,omitempty"`
	Actor         *string    `json:"-"`
}

// Create makes a branch whose head starts at from_version_id, defaulting to
// the current head of the default branch
func (s *BranchService) Create(ctx context.Context, req *CreateBranchRequest) (*models.WorkflowBranch, error) {
	if _, err := s.workflows.GetByID(ctx, req.WorkflowID); err != nil {
		return nil, mapNotFound(err, "workflow", req.WorkflowID.String())
	}

	existing, err := s.branches.GetByWorkflowAndName(ctx, req.WorkflowID, req.Name)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check branch name: %w", err)
	}
	if existing != nil {
		return nil, &ConflictError{Reason: fmt.Sprintf("branch %q already exists", req.Name)}
	}

	var head *uuid.UUID
	if req.FromVersionID != nil {
		version, err := s.versions.GetByID(ctx, *req.FromVersionID)
		if err != nil {
			return nil, mapNotFound(err, "version", req.FromVersionID.String())
		}
		if version.WorkflowID != req.WorkflowID {
			return nil, &ValidationError{Reason: "from_version_id belongs to a different workflow"}
		}
		head = &version.ID
	} else {
		def, err := s.branches.GetDefault(ctx, req.WorkflowID)
		if err != nil {
			return nil, mapNotFound(err, "default branch of workflow", req.WorkflowID.String())
		}
		head = def.HeadVersionID
	}

	now := time.Now()
	branch := &models.WorkflowBranch{
		ID:            uuid.New(),
		WorkflowID:    req.WorkflowID,
		Name:          req.Name,
		HeadVersionID: head,
		IsDefault:     false,
		IsProtected:   false,
		Status:        models.BranchStatusActive,
		RowVersion:    1,
		CreatedBy:     req.Actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.branches.Create(ctx, branch); err != nil {
		return nil, fmt.Errorf("failed to create branch: %w", err)
	}

	writeAudit(ctx, s.audits, s.log, models.AuditBranchCreated, "workflow", req.WorkflowID.String(), req.Actor, map[string]interface{}{
		"branch_id": branch.ID.String(),
		"name":      branch.Name,
	})

	s.log.Info("branch created", "workflow_id", req.WorkflowID, "branch", branch.Name)
	return branch, nil
}

// Get retrieves a branch by ID
func (s *BranchService) Get(ctx context.Context, id uuid.UUID) (*models.WorkflowBranch, error) {
	branch, err := s.branches.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "branch", id.String())
	}
	return branch, nil
}

// ListForWorkflow retrieves all branches of a workflow, default branch first
func (s *BranchService) ListForWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.WorkflowBranch, error) {
	if _, err := s.workflows.GetByID(ctx, workflowID); err != nil {
		return nil, mapNotFound(err, "workflow", workflowID.String())
	}
	return s.branches.ListByWorkflow(ctx, workflowID)
}

// SetProtected toggles merge protection on a branch
func (s *BranchService) SetProtected(ctx context.Context, id uuid.UUID, protected bool, actor *string) (*models.WorkflowBranch, error) {
	branch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.branches.SetProtected(ctx, id, protected); err != nil {
		return nil, mapNotFound(err, "branch", id.String())
	}
	branch.IsProtected = protected

	writeAudit(ctx, s.audits, s.log, models.AuditBranchUpdated, "workflow", branch.WorkflowID.String(), actor, map[string]interface{}{
		"branch_id": branch.ID.String(),
		"name":      branch.Name,
		"protected": protected,
	})

	s.log.Info("branch protection changed", "branch_id", id, "protected", protected)
	return branch, nil
}

// Delete removes a branch. The default branch cannot be deleted.
func (s *BranchService) Delete(ctx context.Context, id uuid.UUID, actor *string) error {
	branch, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if branch.IsDefault {
		return &ValidationError{Reason: "cannot delete the default branch"}
	}

	if err := s.branches.Delete(ctx, id); err != nil {
		return mapNotFound(err, "branch", id.String())
	}

	writeAudit(ctx, s.audits, s.log, models.AuditBranchDeleted, "workflow", branch.WorkflowID.String(), actor, map[string]interface{}{
		"branch_id": branch.ID.String(),
		"name":      branch.Name,
	})

	s.log.Info("branch deleted", "branch_id", id, "name", branch.Name)
	return nil
}
