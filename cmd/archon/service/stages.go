package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/spec"
)

func (s *PipelineService) runStage(ctx context.Context, def models.StageDef, w *models.Workflow, parsed *spec.WorkflowSpec, req *ExecutePipelineRequest) models.StageResult {
	switch def.Type {
	case models.StageLint:
		return s.runLint(parsed)
	case models.StageTest:
		return s.runTest(ctx, w, parsed, req.Actor)
	case models.StageBuild:
		return s.runBuild(ctx, parsed, req.Actor)
	case models.StageDeploy:
		return s.runDeploy(ctx, def, w, req)
	default:
		return models.StageResult{
			Status: models.StageFailed,
			Error:  fmt.Sprintf("unknown stage type %q", def.Type),
		}
	}
}

// runLint statically checks every node and edge of the spec. Error-severity
// issues fail the stage; warnings are reported but never block.
func (s *PipelineService) runLint(parsed *spec.WorkflowSpec) models.StageResult {
	var issues []models.LintIssue

	seen := make(map[string]bool, len(parsed.Nodes))
	for i, node := range parsed.Nodes {
		if node.ID == "" {
			issues = append(issues, models.LintIssue{
				Severity: models.SeverityError,
				Message:  fmt.Sprintf("node at index %d has no id", i),
			})
		} else {
			if seen[node.ID] {
				issues = append(issues, lintError(node.ID, "duplicate node id"))
			}
			seen[node.ID] = true
		}
		if node.Type == "" {
			issues = append(issues, lintError(node.ID, "node has no type"))
		}
		if node.Label == "" {
			issues = append(issues, lintError(node.ID, "node has no label"))
		}

		switch cfg := node.TypedConfig().(type) {
		case spec.AgentConfig:
			if cfg.AgentID == "" {
				issues = append(issues, lintError(node.ID, "agent node is missing config.agent_id"))
			}
		case spec.SkillConfig:
			if cfg.SkillID == "" {
				issues = append(issues, lintWarning(node.ID, "skill node is missing config.skill_id"))
			}
		case spec.ConditionConfig:
			if cfg.Expression == "" {
				issues = append(issues, lintWarning(node.ID, "condition node has no expression"))
			} else if err := s.conditions.Validate(cfg.Expression); err != nil {
				issues = append(issues, lintError(node.ID, fmt.Sprintf("invalid condition expression: %v", err)))
			}
		case spec.WebhookConfig:
			if cfg.URL == "" {
				issues = append(issues, lintWarning(node.ID, "webhook node has no url"))
			} else if err := s.urls.Validate(cfg.URL); err != nil {
				issues = append(issues, lintWarning(node.ID, fmt.Sprintf("webhook url rejected: %v", err)))
			}
		}
	}

	index := parsed.NodeIndex()
	for _, edge := range parsed.Edges {
		if _, ok := index[edge.From]; !ok {
			issues = append(issues, lintWarning(edge.From, "edge references missing node"))
		}
		if _, ok := index[edge.To]; !ok {
			issues = append(issues, lintWarning(edge.To, "edge references missing node"))
		}
	}

	if spec.HasCycle(parsed) {
		issues = append(issues, lintError(spec.FirstCycleNode(parsed), "workflow contains a cycle"))
	}

	errCount, warnCount := 0, 0
	for _, issue := range issues {
		if issue.IsBlocking() {
			errCount++
		} else {
			warnCount++
		}
	}

	status := models.StagePassed
	if errCount > 0 {
		status = models.StageFailed
	}

	return models.StageResult{
		Status: status,
		Issues: issues,
		Output: map[string]interface{}{
			"error_count":   errCount,
			"warning_count": warnCount,
		},
	}
}

func lintError(nodeID, message string) models.LintIssue {
	return models.LintIssue{Severity: models.SeverityError, NodeID: nodeID, Message: message}
}

func lintWarning(nodeID, message string) models.LintIssue {
	return models.LintIssue{Severity: models.SeverityWarning, NodeID: nodeID, Message: message}
}

// runTest smoke-tests the workflow against its stores. All checks run even
// after one fails so the report enumerates every problem.
func (s *PipelineService) runTest(ctx context.Context, w *models.Workflow, parsed *spec.WorkflowSpec, actor *string) models.StageResult {
	checks := []models.TestCheck{
		s.dryRunCheck(ctx, w, actor),
		shapeCheck(w.Spec),
		s.agentResolutionCheck(ctx, parsed),
	}

	failed := 0
	for _, check := range checks {
		if check.Status == models.StageFailed {
			failed++
		}
	}

	status := models.StagePassed
	if failed > 0 {
		status = models.StageFailed
	}

	return models.StageResult{
		Status: status,
		Checks: checks,
		Output: map[string]interface{}{
			"checks_passed": len(checks) - failed,
			"checks_failed": failed,
		},
	}
}

// dryRunCheck round-trips a throwaway version row through the version
// store: create, then delete. Catches connectivity and constraint problems
// without committing anything.
func (s *PipelineService) dryRunCheck(ctx context.Context, w *models.Workflow, actor *string) models.TestCheck {
	check := models.TestCheck{Name: "version store round trip"}

	summary := "[dry-run] pipeline test stage"
	v := &models.WorkflowVersion{
		ID:            uuid.New(),
		WorkflowID:    w.ID,
		Version:       fmt.Sprintf("0.0.0-dryrun-%s", uuid.New().String()[:8]),
		Spec:          w.Spec,
		ChangeSummary: &summary,
		CreatedBy:     actor,
		CreatedAt:     time.Now(),
	}
	if err := s.versions.Create(ctx, v); err != nil {
		check.Status = models.StageFailed
		check.Message = fmt.Sprintf("create failed: %v", err)
		return check
	}
	if err := s.versions.Delete(ctx, v.ID); err != nil {
		check.Status = models.StageFailed
		check.Message = fmt.Sprintf("delete failed: %v", err)
		return check
	}

	check.Status = models.StagePassed
	return check
}

// shapeCheck verifies the raw stored spec still has array-typed nodes and
// edges, independent of what the parser tolerates
func shapeCheck(raw []byte) models.TestCheck {
	check := models.TestCheck{Name: "spec shape"}

	if !gjson.GetBytes(raw, "nodes").IsArray() {
		check.Status = models.StageFailed
		check.Message = "nodes is not an array"
		return check
	}
	if !gjson.GetBytes(raw, "edges").IsArray() {
		check.Status = models.StageFailed
		check.Message = "edges is not an array"
		return check
	}

	check.Status = models.StagePassed
	return check
}

// agentResolutionCheck verifies every agent node references a registered
// agent. Recently resolved ids are cached so repeated runs skip the lookup.
func (s *PipelineService) agentResolutionCheck(ctx context.Context, parsed *spec.WorkflowSpec) models.TestCheck {
	check := models.TestCheck{Name: "agent resolution"}

	var ids []string
	seen := make(map[string]bool)
	for _, node := range parsed.Nodes {
		cfg, ok := node.TypedConfig().(spec.AgentConfig)
		if !ok || cfg.AgentID == "" || seen[cfg.AgentID] {
			continue
		}
		seen[cfg.AgentID] = true
		ids = append(ids, cfg.AgentID)
	}
	if len(ids) == 0 {
		check.Status = models.StagePassed
		check.Message = "no agent nodes"
		return check
	}

	unknown := s.agentCache.filterKnown(ids)
	if len(unknown) == 0 {
		check.Status = models.StagePassed
		return check
	}

	missing, err := s.agents.FilterMissing(ctx, unknown)
	if err != nil {
		check.Status = models.StageFailed
		check.Message = fmt.Sprintf("agent lookup failed: %v", err)
		return check
	}
	if len(missing) > 0 {
		check.Status = models.StageFailed
		check.Message = fmt.Sprintf("unresolved agents: %s", strings.Join(missing, ", "))
		return check
	}

	s.agentCache.remember(unknown)
	check.Status = models.StagePassed
	return check
}

// runBuild canonicalizes the spec and stores it as a content-addressed
// artifact. A pure transform, so it only fails on serialization or storage
// errors.
func (s *PipelineService) runBuild(ctx context.Context, parsed *spec.WorkflowSpec, actor *string) models.StageResult {
	canonical, err := parsed.Canonical()
	if err != nil {
		return models.StageResult{
			Status: models.StageFailed,
			Error:  fmt.Sprintf("failed to canonicalize spec: %v", err),
		}
	}

	sum := sha256.Sum256(canonical)
	checksum := hex.EncodeToString(sum[:])

	casID, err := s.artifacts.StoreContent(ctx, canonical, models.MediaTypeCanonicalSpec, actor)
	if err != nil {
		return models.StageResult{
			Status: models.StageFailed,
			Error:  fmt.Sprintf("failed to store artifact: %v", err),
		}
	}

	return models.StageResult{
		Status: models.StagePassed,
		Output: map[string]interface{}{
			"cas_id":      casID,
			"checksum":    checksum,
			"size_bytes":  len(canonical),
			"fingerprint": fmt.Sprintf("sha256:%s", checksum),
		},
	}
}

// runDeploy records a deployment for the target environment and activates
// the workflow. Store errors are caught and reported as a failed stage, not
// surfaced as handler errors.
func (s *PipelineService) runDeploy(ctx context.Context, def models.StageDef, w *models.Workflow, req *ExecutePipelineRequest) models.StageResult {
	environment := mapString(def.Config, "environment")
	if environment == "" {
		environment = mapString(req.Config, "environment")
	}
	if environment == "" {
		environment = "production"
	}

	url := deployURL(s.cfg.DeployBaseURL, environment, w.ID)

	var versionID *uuid.UUID
	if v, err := s.versions.GetByWorkflowAndVersion(ctx, w.ID, w.Version); err == nil {
		versionID = &v.ID
	}

	deployment := &models.Deployment{
		ID:          uuid.New(),
		WorkflowID:  w.ID,
		Environment: environment,
		Version:     w.Version,
		VersionID:   versionID,
		URL:         url,
		Status:      models.DeploymentActive,
		DeployedBy:  req.Actor,
		DeployedAt:  time.Now(),
	}
	if err := s.deployments.Create(ctx, deployment); err != nil {
		return models.StageResult{
			Status: models.StageFailed,
			Error:  fmt.Sprintf("failed to create deployment: %v", err),
		}
	}

	if err := s.workflows.UpdateStatus(ctx, w.ID, models.WorkflowStatusActive); err != nil {
		return models.StageResult{
			Status: models.StageFailed,
			Error:  fmt.Sprintf("failed to activate workflow: %v", err),
		}
	}

	return models.StageResult{
		Status: models.StagePassed,
		Output: map[string]interface{}{
			"deployment_id": deployment.ID.String(),
			"url":           url,
			"environment":   environment,
			"version":       w.Version,
		},
	}
}

// deployURL synthesizes the access endpoint: the environment becomes a
// subdomain of the configured base
func deployURL(base, environment string, workflowID uuid.UUID) string {
	scheme := "https"
	host := strings.TrimRight(base, "/")
	if i := strings.Index(host, "://"); i >= 0 {
		scheme = host[:i]
		host = host[i+3:]
	}
	return fmt.Sprintf("%s://%s.%s/workflows/%s", scheme, environment, host, workflowID)
}

func mapString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

const agentCacheTTL = 30 * time.Second

// agentCache remembers agent ids that resolved recently so back-to-back
// pipeline runs don't hammer the registry
type agentCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	ids map[string]time.Time
}

func newAgentCache(ttl time.Duration) *agentCache {
	return &agentCache{ttl: ttl, ids: make(map[string]time.Time)}
}

// filterKnown returns the ids without a fresh cache entry
func (c *agentCache) filterKnown(ids []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	unknown := make([]string, 0, len(ids))
	for _, id := range ids {
		if resolved, ok := c.ids[id]; !ok || now.Sub(resolved) > c.ttl {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

func (c *agentCache) remember(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		c.ids[id] = now
	}
}
