package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/common/merge"
	"github.com/archonhq/archon/common/spec"
)

const mergeBaseSpec = `{
	"nodes": [
		{"id": "n1", "type": "trigger", "label": "Start"},
		{"id": "n2", "type": "agent", "label": "Research", "config": {"agent_id": "agt-research"}}
	],
	"edges": [{"from": "n1", "to": "n2"}]
}`

const mergeAddNodeSpec = `{
	"nodes": [
		{"id": "n1", "type": "trigger", "label": "Start"},
		{"id": "n2", "type": "agent", "label": "Research", "config": {"agent_id": "agt-research"}},
		{"id": "n3", "type": "output", "label": "Report"}
	],
	"edges": [
		{"from": "n1", "to": "n2"},
		{"from": "n2", "to": "n3"}
	]
}`

const mergeRelabelSpec = `{
	"nodes": [
		{"id": "n1", "type": "trigger", "label": "Start"},
		{"id": "n2", "type": "agent", "label": "Research v2", "config": {"agent_id": "agt-research"}}
	],
	"edges": [{"from": "n1", "to": "n2"}]
}`

const mergeDriftSpec = `{
	"nodes": [
		{"id": "n1", "type": "trigger", "label": "Start"},
		{"id": "n2", "type": "agent", "label": "Drifted", "config": {"agent_id": "agt-research"}}
	],
	"edges": [{"from": "n1", "to": "n2"}]
}`

func (f *fixture) saveSpec(t *testing.T, workflowID uuid.UUID, raw string) *models.WorkflowVersion {
	t.Helper()
	v, err := f.workflowService().SaveSpec(context.Background(), workflowID, &SaveSpecRequest{
		Spec: json.RawMessage(raw),
	})
	if err != nil {
		t.Fatalf("save spec: %v", err)
	}
	return v
}

func parseSpec(t *testing.T, raw json.RawMessage) *spec.WorkflowSpec {
	t.Helper()
	parsed, err := spec.Parse(raw)
	if err != nil {
		t.Fatalf("parse spec: %v", err)
	}
	return parsed
}

func TestMergeBranchesCleanMerge(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	f.saveSpec(t, w.ID, mergeBaseSpec)
	f.saveSpec(t, w.ID, mergeBaseSpec)
	main := f.defaultBranch(t, w.ID)
	feature := f.seedBranch(t, w, "feature/report", mergeAddNodeSpec, "1.2.1")

	result, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: feature.ID,
		TargetBranchID: main.ID,
	})
	if err != nil {
		t.Fatalf("MergeBranches returned error: %v", err)
	}

	if result.Status != "success" {
		t.Errorf("Expected status success, got %s", result.Status)
	}
	if result.MergedVersion != "1.3.0" {
		t.Errorf("Expected merged version 1.3.0, got %s", result.MergedVersion)
	}
	if result.ConflictsResolved != 0 {
		t.Errorf("Expected 0 conflicts resolved, got %d", result.ConflictsResolved)
	}

	main = f.defaultBranch(t, w.ID)
	head, err := f.versions.GetByID(context.Background(), *main.HeadVersionID)
	if err != nil {
		t.Fatalf("load head: %v", err)
	}
	if head.Version != "1.3.0" {
		t.Errorf("Expected branch head at 1.3.0, got %s", head.Version)
	}
	if head.ParentVersionID == nil {
		t.Error("Expected merged version to record its parent")
	}

	stored, _ := f.workflows.GetByID(context.Background(), w.ID)
	if stored.Version != "1.3.0" {
		t.Errorf("Expected workflow at 1.3.0, got %s", stored.Version)
	}
	merged := parseSpec(t, stored.Spec)
	if _, ok := merged.NodeByID("n3"); !ok {
		t.Error("Expected merged spec to contain source-only node n3")
	}
	if len(merged.Edges) != 2 {
		t.Errorf("Expected 2 edges in merged spec, got %d", len(merged.Edges))
	}

	if feature.Status != models.BranchStatusMerged {
		t.Errorf("Expected source branch marked merged, got %s", feature.Status)
	}
	if audits := f.audits.byAction(models.AuditBranchMerged); len(audits) != 1 {
		t.Errorf("Expected exactly 1 branch.merged audit record, got %d", len(audits))
	}
	published := false
	for _, event := range f.events.events {
		if event == EventWorkflowMerged {
			published = true
		}
	}
	if !published {
		t.Error("Expected a workflow.merged event")
	}
}

func TestMergeBranchesConflictsAreRejected(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	main := f.defaultBranch(t, w.ID)
	feature := f.seedBranch(t, w, "feature/relabel", mergeRelabelSpec, "1.1.0")
	createsBefore := f.versions.createCalls

	_, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: feature.ID,
		TargetBranchID: main.ID,
	})

	var conflictErr *MergeConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("Expected MergeConflictError, got %v", err)
	}
	if len(conflictErr.Conflicts) != 1 {
		t.Fatalf("Expected 1 conflict, got %d", len(conflictErr.Conflicts))
	}
	c := conflictErr.Conflicts[0]
	if c.Type != merge.ConflictNodeModified || c.NodeID != "n2" {
		t.Errorf("Expected node_modified conflict on n2, got %s on %q", c.Type, c.NodeID)
	}

	// Nothing may have been written
	if f.versions.createCalls != createsBefore {
		t.Errorf("Expected no version writes, got %d new", f.versions.createCalls-createsBefore)
	}
	if f.branches.casCalls != 0 {
		t.Errorf("Expected no head CAS attempts, got %d", f.branches.casCalls)
	}
	stored, _ := f.workflows.GetByID(context.Background(), w.ID)
	if stored.Version != "1.0.0" {
		t.Errorf("Expected workflow untouched at 1.0.0, got %s", stored.Version)
	}
	if audits := f.audits.byAction(models.AuditBranchMerged); len(audits) != 0 {
		t.Errorf("Expected no merge audit on conflict, got %d", len(audits))
	}
}

func TestMergeBranchesProtectedTarget(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	main := f.defaultBranch(t, w.ID)
	main.IsProtected = true
	feature := f.seedBranch(t, w, "feature/report", mergeAddNodeSpec, "1.1.0")
	createsBefore := f.versions.createCalls

	_, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: feature.ID,
		TargetBranchID: main.ID,
	})

	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("Expected ForbiddenError for protected target, got %v", err)
	}
	if f.versions.createCalls != createsBefore {
		t.Errorf("Expected no version writes, got %d new", f.versions.createCalls-createsBefore)
	}
	if f.branches.casCalls != 0 {
		t.Errorf("Expected no head CAS attempts, got %d", f.branches.casCalls)
	}
	if len(f.branches.merged) != 0 {
		t.Errorf("Expected no branch marked merged, got %d", len(f.branches.merged))
	}
}

func TestMergeBranchesTheirsStrategy(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	main := f.defaultBranch(t, w.ID)
	feature := f.seedBranch(t, w, "feature/relabel", mergeRelabelSpec, "1.1.0")

	result, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: feature.ID,
		TargetBranchID: main.ID,
		MergeStrategy:  "theirs",
	})
	if err != nil {
		t.Fatalf("MergeBranches returned error: %v", err)
	}

	if result.ConflictsResolved != 1 {
		t.Errorf("Expected 1 conflict resolved by strategy, got %d", result.ConflictsResolved)
	}
	// 1.1.0 is taken by the feature branch, so the merge lands on 1.2.0
	if result.MergedVersion != "1.2.0" {
		t.Errorf("Expected merged version 1.2.0, got %s", result.MergedVersion)
	}

	stored, _ := f.workflows.GetByID(context.Background(), w.ID)
	merged := parseSpec(t, stored.Spec)
	n2, ok := merged.NodeByID("n2")
	if !ok {
		t.Fatal("Expected node n2 in merged spec")
	}
	if n2.Label != "Research v2" {
		t.Errorf("Expected source version of n2 to win, got label %q", n2.Label)
	}
}

func TestMergeBranchesExplicitResolution(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	main := f.defaultBranch(t, w.ID)
	feature := f.seedBranch(t, w, "feature/relabel", mergeRelabelSpec, "1.1.0")

	result, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: feature.ID,
		TargetBranchID: main.ID,
		ConflictResolution: &merge.Resolution{
			Nodes: map[string]spec.Node{
				"n2": {
					ID:     "n2",
					Type:   "agent",
					Label:  "Research final",
					Config: map[string]interface{}{"agent_id": "agt-research"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("MergeBranches returned error: %v", err)
	}

	if result.ConflictsResolved != 1 {
		t.Errorf("Expected 1 conflict resolved explicitly, got %d", result.ConflictsResolved)
	}

	stored, _ := f.workflows.GetByID(context.Background(), w.ID)
	merged := parseSpec(t, stored.Spec)
	n2, _ := merged.NodeByID("n2")
	if n2.Label != "Research final" {
		t.Errorf("Expected the resolution node to win, got label %q", n2.Label)
	}
}

func TestMergeBranchesHeadCASMiss(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	main := f.defaultBranch(t, w.ID)
	feature := f.seedBranch(t, w, "feature/report", mergeAddNodeSpec, "1.1.0")
	f.branches.casConflict = true

	_, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: feature.ID,
		TargetBranchID: main.ID,
	})

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError on head CAS miss, got %v", err)
	}
	stored, _ := f.workflows.GetByID(context.Background(), w.ID)
	if stored.Version != "1.0.0" {
		t.Errorf("Expected workflow untouched at 1.0.0, got %s", stored.Version)
	}
}

func TestMergeBranchesCrossWorkflow(t *testing.T) {
	f := newFixture()
	w1 := f.seedWorkflow(t, mergeBaseSpec)
	w2 := f.seedWorkflow(t, mergeBaseSpec)
	main1 := f.defaultBranch(t, w1.ID)
	feature2 := f.seedBranch(t, w2, "feature/report", mergeAddNodeSpec, "1.1.0")

	_, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: feature2.ID,
		TargetBranchID: main1.ID,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for cross-workflow merge, got %v", err)
	}
}

func TestMergeBranchesSelfMerge(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	main := f.defaultBranch(t, w.ID)

	_, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: main.ID,
		TargetBranchID: main.ID,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for self merge, got %v", err)
	}
}

func TestMergeBranchesNonDefaultTarget(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	source := f.seedBranch(t, w, "feature/report", mergeAddNodeSpec, "1.1.0")
	target := f.seedBranch(t, w, "integration", mergeBaseSpec, "1.2.0")

	result, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: source.ID,
		TargetBranchID: target.ID,
	})
	if err != nil {
		t.Fatalf("MergeBranches returned error: %v", err)
	}
	if result.MergedVersion != "1.3.0" {
		t.Errorf("Expected merged version 1.3.0, got %s", result.MergedVersion)
	}

	// Only merges into the default branch retire the source
	if source.Status != models.BranchStatusActive {
		t.Errorf("Expected source branch to stay open, got %s", source.Status)
	}
	if len(f.branches.merged) != 0 {
		t.Errorf("Expected no branch marked merged, got %d", len(f.branches.merged))
	}

	head, err := f.versions.GetByID(context.Background(), *f.branches.branches[target.ID].HeadVersionID)
	if err != nil {
		t.Fatalf("load target head: %v", err)
	}
	if head.Version != "1.3.0" {
		t.Errorf("Expected target head at 1.3.0, got %s", head.Version)
	}
}

func TestMergeBranchesSnapshotsDriftedSpec(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	main := f.defaultBranch(t, w.ID)
	feature := f.seedBranch(t, w, "feature/report", mergeAddNodeSpec, "1.1.0")

	// Drift the working spec away from the branch head
	f.workflows.workflows[w.ID].Spec = json.RawMessage(mergeDriftSpec)

	_, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: feature.ID,
		TargetBranchID: main.ID,
	})
	if err != nil {
		t.Fatalf("MergeBranches returned error: %v", err)
	}

	backup := f.versions.byVersion(w.ID, "1.0.1")
	if backup == nil {
		t.Fatal("Expected a backup version 1.0.1 for the drifted spec")
	}
	if backup.ChangeSummary == nil || *backup.ChangeSummary != "Pre-merge backup" {
		t.Errorf("Expected backup summary \"Pre-merge backup\", got %v", backup.ChangeSummary)
	}
	snapshot := parseSpec(t, backup.Spec)
	n2, _ := snapshot.NodeByID("n2")
	if n2.Label != "Drifted" {
		t.Errorf("Expected the backup to capture the drifted spec, got label %q", n2.Label)
	}
}

func TestMergeBranchesNoHeadVersion(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	main := f.defaultBranch(t, w.ID)

	empty := &models.WorkflowBranch{
		ID:         uuid.New(),
		WorkflowID: w.ID,
		Name:       "empty",
		Status:     models.BranchStatusActive,
		RowVersion: 1,
	}
	if err := f.branches.Create(context.Background(), empty); err != nil {
		t.Fatalf("seed branch: %v", err)
	}

	_, err := f.mergeService().MergeBranches(context.Background(), &MergeBranchesRequest{
		SourceBranchID: empty.ID,
		TargetBranchID: main.ID,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for headless branch, got %v", err)
	}
}
