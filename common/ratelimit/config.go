package ratelimit

// All counters use a one-minute window; the tier only moves the limit.
const tierWindowSeconds = 60

// DefaultGlobalLimit caps requests per minute across all users combined
const DefaultGlobalLimit int64 = 100

// DefaultUserExecuteLimit caps pipeline executions per user per minute
const DefaultUserExecuteLimit int64 = 30

// Per-tier run budgets per minute
const (
	simpleLimit   int64 = 100
	standardLimit int64 = 20
	heavyLimit    int64 = 5
)

// Limit returns the per-minute budget for the tier. Unknown tiers get
// the most restrictive budget.
func (t WorkflowTier) Limit() int64 {
	switch t {
	case TierSimple:
		return simpleLimit
	case TierStandard:
		return standardLimit
	case TierHeavy:
		return heavyLimit
	default:
		return heavyLimit
	}
}

// Describe returns a human-readable summary for API responses
func (t WorkflowTier) Describe() string {
	switch t {
	case TierSimple:
		return "Simple workflows (no agent nodes) - 100 runs/minute"
	case TierStandard:
		return "Standard workflows (1-2 agent nodes) - 20 runs/minute"
	case TierHeavy:
		return "Heavy workflows (3+ agent nodes) - 5 runs/minute"
	default:
		return "Unknown tier"
	}
}

