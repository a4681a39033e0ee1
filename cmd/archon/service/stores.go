package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
)

// Store interfaces are declared here, on the consumer side, and satisfied
// by the repository package. Services depend on these rather than concrete
// repositories so the engine-level logic can be exercised against
// hand-written fakes.

// WorkflowStore persists workflow aggregates
type WorkflowStore interface {
	Create(ctx context.Context, w *models.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
	List(ctx context.Context, limit, offset int) ([]*models.Workflow, error)
	UpdateMeta(ctx context.Context, w *models.Workflow) error
	CompareAndSwapSpec(ctx context.Context, id uuid.UUID, expectedRowVersion int64, spec json.RawMessage, version string, status models.WorkflowStatus) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.WorkflowStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// VersionStore persists immutable workflow versions. Delete exists solely
// for the pipeline test stage's dry-run round trip.
type VersionStore interface {
	Create(ctx context.Context, v *models.WorkflowVersion) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowVersion, error)
	GetByWorkflowAndVersion(ctx context.Context, workflowID uuid.UUID, version string) (*models.WorkflowVersion, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.WorkflowVersion, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, workflowID uuid.UUID, version string) (bool, error)
}

// BranchStore persists branches and their head pointers
type BranchStore interface {
	Create(ctx context.Context, b *models.WorkflowBranch) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowBranch, error)
	GetByWorkflowAndName(ctx context.Context, workflowID uuid.UUID, name string) (*models.WorkflowBranch, error)
	GetDefault(ctx context.Context, workflowID uuid.UUID) (*models.WorkflowBranch, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.WorkflowBranch, error)
	CompareAndSwapHead(ctx context.Context, id uuid.UUID, expectedRowVersion int64, newHead uuid.UUID) (bool, error)
	MarkMerged(ctx context.Context, id uuid.UUID, mergedBy *string) error
	SetProtected(ctx context.Context, id uuid.UUID, protected bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PipelineStore persists pipeline definitions and their last-run summaries
type PipelineStore interface {
	Create(ctx context.Context, p *models.Pipeline) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Pipeline, error)
	GetByWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.Pipeline, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.Pipeline, error)
	UpdateLastRun(ctx context.Context, id uuid.UUID, run *models.PipelineRun) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunStore persists workflow run bookkeeping
type RunStore interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	CountActive(ctx context.Context, workflowID uuid.UUID) (int, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.Run, error)
	UpdateStatus(ctx context.Context, runID uuid.UUID, status models.RunStatus) error
}

// DeploymentStore persists deployment records
type DeploymentStore interface {
	Create(ctx context.Context, d *models.Deployment) error
	GetActiveByWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.Deployment, error)
	MarkRolledBack(ctx context.Context, workflowID uuid.UUID) (int64, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.Deployment, error)
}

// AuditStore is the append-only audit sink
type AuditStore interface {
	Create(ctx context.Context, record *models.AuditRecord) error
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditRecord, error)
	List(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error)
}

// AgentStore persists the agent registry
type AgentStore interface {
	Create(ctx context.Context, a *models.Agent) error
	GetByID(ctx context.Context, id string) (*models.Agent, error)
	List(ctx context.Context) ([]*models.Agent, error)
	FilterMissing(ctx context.Context, ids []string) ([]string, error)
	Update(ctx context.Context, a *models.Agent) error
	Delete(ctx context.Context, id string) error
}

// ArtifactStore persists content-addressed build artifacts
type ArtifactStore interface {
	Create(ctx context.Context, blob *models.ArtifactBlob) error
	GetByID(ctx context.Context, casID string) (*models.ArtifactBlob, error)
	Exists(ctx context.Context, casID string) (bool, error)
	GetContentByID(ctx context.Context, casID string) ([]byte, error)
}

// Locker acquires short-lived exclusive locks, used to serialize pipeline
// execution per workflow
type Locker interface {
	SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// EventSink publishes domain events. Implementations are best-effort and
// must not fail the calling operation.
type EventSink interface {
	Publish(ctx context.Context, eventType string, payload map[string]interface{})
}
