package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus represents the lifecycle state of a workflow
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// Workflow represents a workflow definition and its current state.
// Maps to: workflow table.
//
// Spec holds the denormalized spec of the current version so reads don't
// join against workflow_version. Version is the semantic version string of
// that spec. RowVersion is the optimistic-lock counter bumped on every
// update; compare-and-swap writes include it in the WHERE clause.
type Workflow struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description *string        `db:"description" json:"description,omitempty"`
	Status      WorkflowStatus `db:"status" json:"status"`

	// Current spec (denormalized from the head version)
	Spec    json.RawMessage `db:"spec" json:"spec"`
	Version string          `db:"version" json:"version"`

	RowVersion int64 `db:"row_version" json:"row_version"`

	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsActive returns true if the workflow is deployed
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// IsArchived returns true if the workflow has been archived
func (w *Workflow) IsArchived() bool {
	return w.Status == WorkflowStatusArchived
}
