package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of a workflow run
type RunStatus string

const (
	StatusQueued             RunStatus = "QUEUED"
	StatusRunning            RunStatus = "RUNNING"
	StatusWaitingForApproval RunStatus = "WAITING_FOR_APPROVAL"
	StatusCompleted          RunStatus = "COMPLETED"
	StatusFailed             RunStatus = "FAILED"
	StatusCancelled          RunStatus = "CANCELLED"
)

// ActiveRunStatuses are the statuses that count as in-flight. Rollback is
// refused while any run of the workflow is in one of these.
func ActiveRunStatuses() []RunStatus {
	return []RunStatus{StatusQueued, StatusRunning, StatusWaitingForApproval}
}

// Run represents one execution of a deployed workflow.
// Maps to: run table.
type Run struct {
	RunID      uuid.UUID `db:"run_id" json:"run_id"`
	WorkflowID uuid.UUID `db:"workflow_id" json:"workflow_id"`

	// Version of the workflow spec this run executes
	Version string `db:"version" json:"version"`

	Status RunStatus `db:"status" json:"status"`

	SubmittedBy *string    `db:"submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt time.Time  `db:"submitted_at" json:"submitted_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// IsActive returns true if the run is still in flight
func (r *Run) IsActive() bool {
	switch r.Status {
	case StatusQueued, StatusRunning, StatusWaitingForApproval:
		return true
	}
	return false
}

// IsTerminal returns true if the run has finished
func (r *Run) IsTerminal() bool {
	return !r.IsActive()
}
