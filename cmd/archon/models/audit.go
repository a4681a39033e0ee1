package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the service
const (
	AuditWorkflowCreated    = "workflow.created"
	AuditWorkflowUpdated    = "workflow.updated"
	AuditWorkflowDeleted    = "workflow.deleted"
	AuditWorkflowRolledBack = "workflow.rolled_back"
	AuditBranchCreated      = "branch.created"
	AuditBranchUpdated      = "branch.updated"
	AuditBranchDeleted      = "branch.deleted"
	AuditBranchMerged       = "branch.merged"
	AuditPipelineCreated    = "pipeline.created"
	AuditPipelineExecuted   = "pipeline.executed"
)

// AuditRecord is an append-only trail entry.
// Maps to: audit_record table.
//
// Exactly one record is written per pipeline invocation, merge, or
// rollback, whether the operation succeeded or failed.
type AuditRecord struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`

	UserID *string `db:"user_id" json:"user_id,omitempty"`

	// Action-specific payload (outcome, versions, stage summaries)
	Details json.RawMessage `db:"details" json:"details,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
