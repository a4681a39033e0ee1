package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
)

func TestCompareVersions(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	saved := f.saveSpec(t, w.ID, mergeAddNodeSpec)
	initial := f.versions.byVersion(w.ID, "1.0.0")
	if initial == nil {
		t.Fatal("Expected the initial version to exist")
	}

	result, err := f.versionService().Compare(context.Background(), &CompareRequest{
		VersionIDA: initial.ID,
		VersionIDB: saved.ID,
	})
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}

	if result.VersionA.Version != "1.0.0" || result.VersionB.Version != "1.1.0" {
		t.Errorf("Expected refs 1.0.0 and 1.1.0, got %s and %s", result.VersionA.Version, result.VersionB.Version)
	}
	if result.VersionA.ID != initial.ID || result.VersionB.ID != saved.ID {
		t.Error("Expected refs to echo the requested version ids")
	}

	d := result.Diff
	if len(d.Nodes.Added) != 1 || d.Nodes.Added[0].ID != "n3" {
		t.Errorf("Expected node n3 added, got %+v", d.Nodes.Added)
	}
	if len(d.Nodes.Removed) != 0 || len(d.Nodes.Modified) != 0 {
		t.Errorf("Expected no removals or modifications, got %+v", d.Nodes)
	}
	if len(d.Edges.Added) != 1 {
		t.Errorf("Expected 1 edge added, got %d", len(d.Edges.Added))
	}
	if d.Summary.Total != 2 {
		t.Errorf("Expected 2 total changes, got %d", d.Summary.Total)
	}
}

func TestCompareVersionsNotFound(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	initial := f.versions.byVersion(w.ID, "1.0.0")

	_, err := f.versionService().Compare(context.Background(), &CompareRequest{
		VersionIDA: initial.ID,
		VersionIDB: uuid.New(),
	})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestRollback(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	f.saveSpec(t, w.ID, mergeAddNodeSpec)
	f.saveSpec(t, w.ID, mergeRelabelSpec)

	// Live deployment from an earlier pipeline run
	f.workflows.workflows[w.ID].Status = models.WorkflowStatusActive
	deployment := &models.Deployment{
		ID:          uuid.New(),
		WorkflowID:  w.ID,
		Environment: "production",
		Version:     "1.2.0",
		Status:      models.DeploymentActive,
		DeployedAt:  time.Now(),
	}
	if err := f.deployments.Create(context.Background(), deployment); err != nil {
		t.Fatalf("seed deployment: %v", err)
	}

	result, err := f.versionService().Rollback(context.Background(), &RollbackRequest{
		WorkflowID:    w.ID,
		TargetVersion: "1.1.0",
		Reason:        "regression in report generation",
	})
	if err != nil {
		t.Fatalf("Rollback returned error: %v", err)
	}

	if !result.Success {
		t.Error("Expected success")
	}
	if result.PreviousVersion != "1.2.0" {
		t.Errorf("Expected previous version 1.2.0, got %s", result.PreviousVersion)
	}
	if result.CurrentVersion != "1.1.0" {
		t.Errorf("Expected current version 1.1.0, got %s", result.CurrentVersion)
	}
	if result.Status != "draft" {
		t.Errorf("Expected status draft, got %s", result.Status)
	}

	backup := f.versions.byVersion(w.ID, "1.2.1")
	if backup == nil {
		t.Fatal("Expected backup version 1.2.1 before the rollback")
	}
	if backup.ChangeSummary == nil || *backup.ChangeSummary != "Pre-rollback backup: regression in report generation" {
		t.Errorf("Expected backup summary with the reason, got %v", backup.ChangeSummary)
	}
	snapshot := parseSpec(t, backup.Spec)
	if n2, _ := snapshot.NodeByID("n2"); n2.Label != "Research v2" {
		t.Errorf("Expected the backup to capture the 1.2.0 spec, got label %q", n2.Label)
	}

	stored, _ := f.workflows.GetByID(context.Background(), w.ID)
	if stored.Version != "1.1.0" {
		t.Errorf("Expected workflow at 1.1.0, got %s", stored.Version)
	}
	if stored.Status != models.WorkflowStatusDraft {
		t.Errorf("Expected workflow back to draft, got %s", stored.Status)
	}
	restored := parseSpec(t, stored.Spec)
	if _, ok := restored.NodeByID("n3"); !ok {
		t.Error("Expected the restored spec to be the 1.1.0 content")
	}

	main := f.defaultBranch(t, w.ID)
	target := f.versions.byVersion(w.ID, "1.1.0")
	if main.HeadVersionID == nil || *main.HeadVersionID != target.ID {
		t.Error("Expected the default branch head to point at the target version")
	}

	if deployment.Status != models.DeploymentRolledBack {
		t.Errorf("Expected deployment rolled back, got %s", deployment.Status)
	}

	if audits := f.audits.byAction(models.AuditWorkflowRolledBack); len(audits) != 1 {
		t.Errorf("Expected exactly 1 workflow.rolled_back audit record, got %d", len(audits))
	}
	published := false
	for _, event := range f.events.events {
		if event == EventWorkflowRolledBack {
			published = true
		}
	}
	if !published {
		t.Error("Expected a workflow.rolled_back event")
	}
}

func TestRollbackBlockedByActiveRuns(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	f.saveSpec(t, w.ID, mergeAddNodeSpec)
	run := &models.Run{
		RunID:       uuid.New(),
		WorkflowID:  w.ID,
		Version:     "1.1.0",
		Status:      models.StatusRunning,
		SubmittedAt: time.Now(),
	}
	if err := f.runs.Create(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	versionsBefore := f.versions.count(w.ID)
	casBefore := f.branches.casCalls

	_, err := f.versionService().Rollback(context.Background(), &RollbackRequest{
		WorkflowID:    w.ID,
		TargetVersion: "1.0.0",
		Reason:        "rollback during run",
	})

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError while runs are active, got %v", err)
	}

	// The precondition fired before any write
	if after := f.versions.count(w.ID); after != versionsBefore {
		t.Errorf("Expected no backup version, count %d -> %d", versionsBefore, after)
	}
	if f.branches.casCalls != casBefore {
		t.Errorf("Expected no head CAS from the refused rollback, got %d new", f.branches.casCalls-casBefore)
	}
	stored, _ := f.workflows.GetByID(context.Background(), w.ID)
	if stored.Version != "1.1.0" {
		t.Errorf("Expected workflow untouched at 1.1.0, got %s", stored.Version)
	}
}

func TestRollbackUnknownVersion(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)

	_, err := f.versionService().Rollback(context.Background(), &RollbackRequest{
		WorkflowID:    w.ID,
		TargetVersion: "7.7.7",
		Reason:        "nope",
	})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError for unknown version, got %v", err)
	}
}

func TestRollbackAlreadyAtVersion(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)

	_, err := f.versionService().Rollback(context.Background(), &RollbackRequest{
		WorkflowID:    w.ID,
		TargetVersion: "1.0.0",
		Reason:        "no-op",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError when already at the target, got %v", err)
	}
}

func TestRollbackHeadCASMiss(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	f.saveSpec(t, w.ID, mergeAddNodeSpec)
	f.branches.casConflict = true

	_, err := f.versionService().Rollback(context.Background(), &RollbackRequest{
		WorkflowID:    w.ID,
		TargetVersion: "1.0.0",
		Reason:        "concurrent edit",
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError on head CAS miss, got %v", err)
	}
	stored, _ := f.workflows.GetByID(context.Background(), w.ID)
	if stored.Version != "1.1.0" {
		t.Errorf("Expected workflow untouched at 1.1.0, got %s", stored.Version)
	}
}

func TestListHistoryNewestFirst(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	f.saveSpec(t, w.ID, mergeAddNodeSpec)
	f.saveSpec(t, w.ID, mergeRelabelSpec)

	history, err := f.versionService().ListHistory(context.Background(), w.ID, 0)
	if err != nil {
		t.Fatalf("ListHistory returned error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 versions, got %d", len(history))
	}
	want := []string{"1.2.0", "1.1.0", "1.0.0"}
	for i, version := range want {
		if history[i].Version != version {
			t.Errorf("Position %d: expected %s, got %s", i, version, history[i].Version)
		}
	}
}
