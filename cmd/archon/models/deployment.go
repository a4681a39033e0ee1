package models

import (
	"time"

	"github.com/google/uuid"
)

// DeploymentStatus represents the state of a deployment
type DeploymentStatus string

const (
	DeploymentActive     DeploymentStatus = "active"
	DeploymentSuperseded DeploymentStatus = "superseded"
	DeploymentRolledBack DeploymentStatus = "rolled_back"
)

// Deployment records a workflow version going live in an environment.
// Maps to: deployment table.
//
// A workflow has at most one active deployment per environment; deploying
// again marks the previous one superseded, rolling back marks it
// rolled_back.
type Deployment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	WorkflowID uuid.UUID `db:"workflow_id" json:"workflow_id"`

	Environment string `db:"environment" json:"environment"`

	Version   string     `db:"version" json:"version"`
	VersionID *uuid.UUID `db:"version_id" json:"version_id,omitempty"`

	// Synthesized execution endpoint for the deployed workflow
	URL string `db:"url" json:"url"`

	Status DeploymentStatus `db:"status" json:"status"`

	DeployedBy *string   `db:"deployed_by" json:"deployed_by,omitempty"`
	DeployedAt time.Time `db:"deployed_at" json:"deployed_at"`
}
