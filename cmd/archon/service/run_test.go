package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
)

func TestRunSubmitPinsCurrentVersion(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	f.saveSpec(t, w.ID, mergeAddNodeSpec)
	svc := NewRunService(f.runs, f.workflows, f.log)

	run, err := svc.Submit(context.Background(), &SubmitRunRequest{WorkflowID: w.ID})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if run.Status != models.StatusQueued {
		t.Errorf("Expected queued, got %s", run.Status)
	}
	if run.Version != "1.1.0" {
		t.Errorf("Expected run pinned to 1.1.0, got %s", run.Version)
	}
}

func TestRunSubmitWorkflowNotFound(t *testing.T) {
	f := newFixture()
	svc := NewRunService(f.runs, f.workflows, f.log)

	_, err := svc.Submit(context.Background(), &SubmitRunRequest{WorkflowID: uuid.New()})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestRunUpdateStatus(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	svc := NewRunService(f.runs, f.workflows, f.log)

	run, err := svc.Submit(context.Background(), &SubmitRunRequest{WorkflowID: w.ID})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	updated, err := svc.UpdateStatus(context.Background(), run.RunID, models.StatusRunning)
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if updated.Status != models.StatusRunning {
		t.Errorf("Expected running, got %s", updated.Status)
	}

	_, err = svc.UpdateStatus(context.Background(), run.RunID, models.RunStatus("EXPLODED"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for unknown status, got %v", err)
	}
}

func TestRunGateCountsActiveStatuses(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	svc := NewRunService(f.runs, f.workflows, f.log)

	run, err := svc.Submit(context.Background(), &SubmitRunRequest{WorkflowID: w.ID})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	active, _ := f.runs.CountActive(context.Background(), w.ID)
	if active != 1 {
		t.Errorf("Expected 1 active run while queued, got %d", active)
	}

	if _, err := svc.UpdateStatus(context.Background(), run.RunID, models.StatusCompleted); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	active, _ = f.runs.CountActive(context.Background(), w.ID)
	if active != 0 {
		t.Errorf("Expected 0 active runs after completion, got %d", active)
	}
}
