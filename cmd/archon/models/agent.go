package models

import "time"

// AgentStatus represents agent availability
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentDisabled  AgentStatus = "disabled"
)

// Agent is a registered agent that workflow nodes reference by ID.
// Maps to: agent table.
//
// IDs are caller-chosen text (e.g. "agt-research") so specs stay readable;
// the test stage resolves every agent node's config.agent_id against this
// registry.
type Agent struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Model       string      `db:"model" json:"model"`
	Description *string     `db:"description" json:"description,omitempty"`
	Status      AgentStatus `db:"status" json:"status"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsAvailable returns true if nodes may reference this agent
func (a *Agent) IsAvailable() bool {
	return a.Status == AgentAvailable
}
