package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WorkflowVersion is an immutable snapshot of a workflow spec.
// Maps to: workflow_version table.
//
// Rows are append-only: edits, merges and rollbacks always create a new
// version rather than mutating an existing one. The only deletion path is
// the pipeline test stage's dry-run round trip.
type WorkflowVersion struct {
	ID         uuid.UUID `db:"id" json:"id"`
	WorkflowID uuid.UUID `db:"workflow_id" json:"workflow_id"`

	// Branch this version was created on, if any
	BranchID *uuid.UUID `db:"branch_id" json:"branch_id,omitempty"`

	// Semantic version string, e.g. "1.3.0". Unique per workflow.
	Version string `db:"version" json:"version"`

	Spec json.RawMessage `db:"spec" json:"spec"`

	// Free-form note: merge summary, rollback reason, "[dry-run]" marker
	ChangeSummary *string `db:"change_summary" json:"change_summary,omitempty"`

	// Version this one was derived from
	ParentVersionID *uuid.UUID `db:"parent_version_id" json:"parent_version_id,omitempty"`

	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
