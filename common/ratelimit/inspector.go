package ratelimit

import "github.com/archonhq/archon/common/spec"

// WorkflowTier represents the rate limit tier based on workflow complexity
type WorkflowTier string

const (
	TierSimple   WorkflowTier = "simple"   // No agent nodes
	TierStandard WorkflowTier = "standard" // 1-2 agent nodes
	TierHeavy    WorkflowTier = "heavy"    // 3+ agent nodes
)

// WorkflowProfile contains analysis of a workflow's complexity
type WorkflowProfile struct {
	Tier          WorkflowTier `json:"tier"`
	AgentCount    int          `json:"agent_count"`
	HasAgentNodes bool         `json:"has_agent_nodes"`
	TotalNodes    int          `json:"total_nodes"`
}

// InspectSpec analyzes a workflow spec and determines its complexity tier
func InspectSpec(s *spec.WorkflowSpec) WorkflowProfile {
	profile := WorkflowProfile{Tier: TierSimple}
	if s == nil {
		return profile
	}

	profile.TotalNodes = len(s.Nodes)
	profile.AgentCount = s.AgentCount()
	profile.HasAgentNodes = profile.AgentCount > 0
	profile.Tier = determineTier(profile.AgentCount)

	return profile
}

// determineTier returns the appropriate tier based on agent count
func determineTier(agentCount int) WorkflowTier {
	switch {
	case agentCount == 0:
		return TierSimple
	case agentCount <= 2:
		return TierStandard
	default: // 3+
		return TierHeavy
	}
}

// String returns a human-readable description of the tier
func (t WorkflowTier) String() string {
	switch t {
	case TierSimple:
		return "simple"
	case TierStandard:
		return "standard"
	case TierHeavy:
		return "heavy"
	default:
		return "unknown"
	}
}
