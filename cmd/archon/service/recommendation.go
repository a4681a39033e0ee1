package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/common/cache"
	"github.com/archonhq/archon/common/clients"
	"github.com/archonhq/archon/common/llm"
	"github.com/archonhq/archon/common/logger"
	"github.com/archonhq/archon/common/ratelimit"
	"github.com/archonhq/archon/common/spec"
)

const recommendationSystem = `You are a workflow architecture reviewer. You receive a summary of a node/edge workflow and reply with JSON only: {"recommendations": [{"type": string, "title": string, "description": string, "severity": "info"|"warning"|"critical", "node_ids": [string]}]}. Keep recommendations specific to the nodes given.`

// Recommendation is one LLM-produced improvement suggestion
type Recommendation struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	NodeIDs     []string `json:"node_ids,omitempty"`
}

// RecommendationService asks the LLM to review a workflow's structure.
// Calls are rate limited by workflow complexity tier; heavier specs burn
// the budget faster. Results are cached per spec revision so repeat
// reviews of an unchanged workflow cost nothing.
type RecommendationService struct {
	workflows WorkflowStore
	limiter   *ratelimit.RateLimiter
	llm       llm.Client
	retrier   *clients.Retrier
	cache     cache.Cache
	cacheTTL  time.Duration
	log       *logger.Logger
}

// RecommendationServiceOpts contains options for creating a
// RecommendationService. Limiter and Cache may be nil when the
// corresponding features are disabled.
type RecommendationServiceOpts struct {
	Workflows WorkflowStore
	Limiter   *ratelimit.RateLimiter
	LLM       llm.Client
	Retrier   *clients.Retrier
	Cache     cache.Cache
	CacheTTL  time.Duration
	Logger    *logger.Logger
}

// NewRecommendationService creates a new recommendation service
func NewRecommendationService(opts *RecommendationServiceOpts) *RecommendationService {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RecommendationService{
		workflows: opts.Workflows,
		limiter:   opts.Limiter,
		llm:       opts.LLM,
		retrier:   opts.Retrier,
		cache:     opts.Cache,
		cacheTTL:  ttl,
		log:       opts.Logger,
	}
}

// Recommend reviews the workflow and returns improvement suggestions.
// Focus is one of refactoring, anomaly, cost; empty defaults to
// refactoring.
func (s *RecommendationService) Recommend(ctx context.Context, workflowID uuid.UUID, focus, username string) ([]Recommendation, error) {
	switch focus {
	case "":
		focus = "refactoring"
	case "refactoring", "anomaly", "cost":
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown focus %q", focus)}
	}

	w, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, mapNotFound(err, "workflow", workflowID.String())
	}

	parsed, err := spec.Parse(w.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow spec: %w", err)
	}

	// Cache hits are keyed to the spec revision and skip both the rate
	// limit check and the LLM call.
	key := recommendationKey(workflowID, w.RowVersion, focus)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("recommendation cache read failed", "error", err)
		} else if ok {
			var cached []Recommendation
			if err := json.Unmarshal(raw, &cached); err == nil {
				s.log.Debug("serving cached recommendations",
					"workflow_id", workflowID,
					"focus", focus,
				)
				return cached, nil
			}
		}
	}

	if s.limiter != nil {
		profile := ratelimit.InspectSpec(parsed)
		result, err := s.limiter.CheckTieredLimit(ctx, username, profile.Tier)
		if err != nil {
			// Fail open when the limiter itself is down
			s.log.Warn("rate limiter unavailable, allowing request", "error", err)
		} else if !result.Allowed {
			return nil, &RateLimitError{
				Tier:              profile.Tier,
				Limit:             result.Limit,
				CurrentCount:      result.CurrentCount,
				RetryAfterSeconds: result.RetryAfterSeconds,
			}
		}
	}

	prompt := recommendationPrompt(w.Name, parsed, focus)

	var raw json.RawMessage
	generate := func(ctx context.Context) error {
		var genErr error
		raw, genErr = s.llm.GenerateJSON(ctx, recommendationSystem, prompt)
		return genErr
	}
	if s.retrier != nil {
		err = s.retrier.Do(ctx, "llm.recommendations", generate)
	} else {
		err = generate(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate recommendations: %w", err)
	}

	var payload struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse recommendations: %w", err)
	}

	if s.cache != nil {
		if buf, err := json.Marshal(payload.Recommendations); err == nil {
			if err := s.cache.Set(ctx, key, buf, s.cacheTTL); err != nil {
				s.log.Warn("recommendation cache write failed", "error", err)
			}
		}
	}

	s.log.Info("recommendations generated",
		"workflow_id", workflowID,
		"focus", focus,
		"count", len(payload.Recommendations),
	)
	return payload.Recommendations, nil
}

// recommendationKey ties cached output to the exact spec revision.
// RowVersion bumps on every workflow write, so stale entries are never
// hit and simply age out on TTL.
func recommendationKey(id uuid.UUID, rowVersion int64, focus string) string {
	return fmt.Sprintf("recommendations:%s:%d:%s", id, rowVersion, focus)
}

// recommendationPrompt summarizes the workflow structure for the model.
// The raw config maps are deliberately left out; node ids, types, labels
// and topology are enough for structural review.
func recommendationPrompt(name string, parsed *spec.WorkflowSpec, focus string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review focus: %s\n", focus)
	fmt.Fprintf(&b, "Workflow: %s\n", name)
	if parsed.CollaborationStrategy != "" {
		fmt.Fprintf(&b, "Collaboration strategy: %s\n", parsed.CollaborationStrategy)
	}

	fmt.Fprintf(&b, "Nodes (%d):\n", len(parsed.Nodes))
	for _, node := range parsed.Nodes {
		fmt.Fprintf(&b, "- %s (%s): %s\n", node.ID, node.Type, node.Label)
	}

	fmt.Fprintf(&b, "Edges (%d):\n", len(parsed.Edges))
	for _, edge := range parsed.Edges {
		fmt.Fprintf(&b, "- %s -> %s\n", edge.From, edge.To)
	}

	return b.String()
}
