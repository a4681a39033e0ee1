package models

import (
	"time"

	"github.com/google/uuid"
)

// BranchStatus represents the lifecycle state of a branch
type BranchStatus string

const (
	BranchStatusActive BranchStatus = "active"
	BranchStatusMerged BranchStatus = "merged"
)

// WorkflowBranch is a named line of development for a workflow.
// Maps to: workflow_branch table.
//
// HeadVersionID points at the branch's latest version. Moving the head is
// a compare-and-swap on RowVersion so concurrent merges cannot clobber
// each other. Every workflow has exactly one default branch; merging into
// it marks the source branch merged.
type WorkflowBranch struct {
	ID         uuid.UUID `db:"id" json:"id"`
	WorkflowID uuid.UUID `db:"workflow_id" json:"workflow_id"`
	Name       string    `db:"name" json:"name"`

	HeadVersionID *uuid.UUID `db:"head_version_id" json:"head_version_id,omitempty"`

	IsDefault   bool         `db:"is_default" json:"is_default"`
	IsProtected bool         `db:"is_protected" json:"is_protected"`
	Status      BranchStatus `db:"status" json:"status"`

	RowVersion int64 `db:"row_version" json:"row_version"`

	MergedAt *time.Time `db:"merged_at" json:"merged_at,omitempty"`
	MergedBy *string    `db:"merged_by" json:"merged_by,omitempty"`

	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsMerged returns true once the branch has been folded into another
func (b *WorkflowBranch) IsMerged() bool {
	return b.Status == BranchStatusMerged
}
