package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/cmd/archon/models"
	"github.com/archonhq/archon/cmd/archon/repository"
	"github.com/archonhq/archon/common/config"
	"github.com/archonhq/archon/common/logger"
)

// In-memory fakes for the store interfaces so the services run against
// maps instead of postgres.

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func notFound(resource, ref string) error {
	return fmt.Errorf("%s %s: %w", resource, ref, repository.ErrNotFound)
}

type fakeWorkflowStore struct {
	workflows   map[uuid.UUID]*models.Workflow
	casConflict bool
	casCalls    int
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{workflows: make(map[uuid.UUID]*models.Workflow)}
}

func (f *fakeWorkflowStore) Create(ctx context.Context, w *models.Workflow) error {
	f.workflows[w.ID] = w
	return nil
}

func (f *fakeWorkflowStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	w, ok := f.workflows[id]
	if !ok {
		return nil, notFound("workflow", id.String())
	}
	return w, nil
}

func (f *fakeWorkflowStore) List(ctx context.Context, limit, offset int) ([]*models.Workflow, error) {
	out := make([]*models.Workflow, 0, len(f.workflows))
	for _, w := range f.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeWorkflowStore) UpdateMeta(ctx context.Context, w *models.Workflow) error {
	if _, ok := f.workflows[w.ID]; !ok {
		return notFound("workflow", w.ID.String())
	}
	f.workflows[w.ID] = w
	return nil
}

func (f *fakeWorkflowStore) CompareAndSwapSpec(ctx context.Context, id uuid.UUID, expectedRowVersion int64, spec json.RawMessage, version string, status models.WorkflowStatus) (bool, error) {
	f.casCalls++
	if f.casConflict {
		return false, nil
	}
	w, ok := f.workflows[id]
	if !ok || w.RowVersion != expectedRowVersion {
		return false, nil
	}
	w.Spec = spec
	w.Version = version
	w.Status = status
	w.RowVersion++
	w.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeWorkflowStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.WorkflowStatus) error {
	w, ok := f.workflows[id]
	if !ok {
		return notFound("workflow", id.String())
	}
	w.Status = status
	return nil
}

func (f *fakeWorkflowStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.workflows[id]; !ok {
		return notFound("workflow", id.String())
	}
	delete(f.workflows, id)
	return nil
}

type fakeVersionStore struct {
	versions    map[uuid.UUID]*models.WorkflowVersion
	order       []uuid.UUID
	createCalls int
	failCreate  error
	failDelete  error
	deleted     []uuid.UUID
}

func newFakeVersionStore() *fakeVersionStore {
	return &fakeVersionStore{versions: make(map[uuid.UUID]*models.WorkflowVersion)}
}

func (f *fakeVersionStore) Create(ctx context.Context, v *models.WorkflowVersion) error {
	f.createCalls++
	if f.failCreate != nil {
		return f.failCreate
	}
	f.versions[v.ID] = v
	f.order = append(f.order, v.ID)
	return nil
}

func (f *fakeVersionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowVersion, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, notFound("version", id.String())
	}
	return v, nil
}

func (f *fakeVersionStore) GetByWorkflowAndVersion(ctx context.Context, workflowID uuid.UUID, version string) (*models.WorkflowVersion, error) {
	if v := f.byVersion(workflowID, version); v != nil {
		return v, nil
	}
	return nil, notFound("version", version)
}

func (f *fakeVersionStore) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.WorkflowVersion, error) {
	var out []*models.WorkflowVersion
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		if v, ok := f.versions[f.order[i]]; ok && v.WorkflowID == workflowID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVersionStore) Delete(ctx context.Context, id uuid.UUID) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, ok := f.versions[id]; !ok {
		return notFound("version", id.String())
	}
	delete(f.versions, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeVersionStore) Exists(ctx context.Context, workflowID uuid.UUID, version string) (bool, error) {
	return f.byVersion(workflowID, version) != nil, nil
}

func (f *fakeVersionStore) byVersion(workflowID uuid.UUID, version string) *models.WorkflowVersion {
	for _, v := range f.versions {
		if v.WorkflowID == workflowID && v.Version == version {
			return v
		}
	}
	return nil
}

func (f *fakeVersionStore) count(workflowID uuid.UUID) int {
	n := 0
	for _, v := range f.versions {
		if v.WorkflowID == workflowID {
			n++
		}
	}
	return n
}

type fakeBranchStore struct {
	branches    map[uuid.UUID]*models.WorkflowBranch
	casConflict bool
	casCalls    int
	merged      []uuid.UUID
}

func newFakeBranchStore() *fakeBranchStore {
	return &fakeBranchStore{branches: make(map[uuid.UUID]*models.WorkflowBranch)}
}

func (f *fakeBranchStore) Create(ctx context.Context, b *models.WorkflowBranch) error {
	f.branches[b.ID] = b
	return nil
}

func (f *fakeBranchStore) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowBranch, error) {
	b, ok := f.branches[id]
	if !ok {
		return nil, notFound("branch", id.String())
	}
	return b, nil
}

func (f *fakeBranchStore) GetByWorkflowAndName(ctx context.Context, workflowID uuid.UUID, name string) (*models.WorkflowBranch, error) {
	for _, b := range f.branches {
		if b.WorkflowID == workflowID && b.Name == name {
			return b, nil
		}
	}
	return nil, notFound("branch", name)
}

func (f *fakeBranchStore) GetDefault(ctx context.Context, workflowID uuid.UUID) (*models.WorkflowBranch, error) {
	for _, b := range f.branches {
		if b.WorkflowID == workflowID && b.IsDefault {
			return b, nil
		}
	}
	return nil, notFound("default branch", workflowID.String())
}

func (f *fakeBranchStore) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.WorkflowBranch, error) {
	var out []*models.WorkflowBranch
	for _, b := range f.branches {
		if b.WorkflowID == workflowID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeBranchStore) CompareAndSwapHead(ctx context.Context, id uuid.UUID, expectedRowVersion int64, newHead uuid.UUID) (bool, error) {
	f.casCalls++
	if f.casConflict {
		return false, nil
	}
	b, ok := f.branches[id]
	if !ok || b.RowVersion != expectedRowVersion {
		return false, nil
	}
	head := newHead
	b.HeadVersionID = &head
	b.RowVersion++
	b.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeBranchStore) MarkMerged(ctx context.Context, id uuid.UUID, mergedBy *string) error {
	b, ok := f.branches[id]
	if !ok {
		return notFound("branch", id.String())
	}
	now := time.Now()
	b.Status = models.BranchStatusMerged
	b.MergedAt = &now
	b.MergedBy = mergedBy
	b.RowVersion++
	f.merged = append(f.merged, id)
	return nil
}

func (f *fakeBranchStore) SetProtected(ctx context.Context, id uuid.UUID, protected bool) error {
	b, ok := f.branches[id]
	if !ok {
		return notFound("branch", id.String())
	}
	b.IsProtected = protected
	return nil
}

func (f *fakeBranchStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.branches[id]; !ok {
		return notFound("branch", id.String())
	}
	delete(f.branches, id)
	return nil
}

type fakePipelineStore struct {
	pipelines map[uuid.UUID]*models.Pipeline
}

func newFakePipelineStore() *fakePipelineStore {
	return &fakePipelineStore{pipelines: make(map[uuid.UUID]*models.Pipeline)}
}

func (f *fakePipelineStore) Create(ctx context.Context, p *models.Pipeline) error {
	f.pipelines[p.ID] = p
	return nil
}

func (f *fakePipelineStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Pipeline, error) {
	p, ok := f.pipelines[id]
	if !ok {
		return nil, notFound("pipeline", id.String())
	}
	return p, nil
}

func (f *fakePipelineStore) GetByWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.Pipeline, error) {
	var latest *models.Pipeline
	for _, p := range f.pipelines {
		if p.WorkflowID != workflowID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, notFound("pipeline for workflow", workflowID.String())
	}
	return latest, nil
}

func (f *fakePipelineStore) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.Pipeline, error) {
	var out []*models.Pipeline
	for _, p := range f.pipelines {
		if p.WorkflowID == workflowID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakePipelineStore) UpdateLastRun(ctx context.Context, id uuid.UUID, run *models.PipelineRun) error {
	p, ok := f.pipelines[id]
	if !ok {
		return notFound("pipeline", id.String())
	}
	p.LastRun = run
	p.UpdatedAt = time.Now()
	return nil
}

func (f *fakePipelineStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.pipelines[id]; !ok {
		return notFound("pipeline", id.String())
	}
	delete(f.pipelines, id)
	return nil
}

type fakeRunStore struct {
	runs map[uuid.UUID]*models.Run
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[uuid.UUID]*models.Run)}
}

func (f *fakeRunStore) Create(ctx context.Context, run *models.Run) error {
	f.runs[run.RunID] = run
	return nil
}

func (f *fakeRunStore) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, notFound("run", runID.String())
	}
	return run, nil
}

func (f *fakeRunStore) CountActive(ctx context.Context, workflowID uuid.UUID) (int, error) {
	n := 0
	for _, run := range f.runs {
		if run.WorkflowID == workflowID && run.IsActive() {
			n++
		}
	}
	return n, nil
}

func (f *fakeRunStore) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.Run, error) {
	var out []*models.Run
	for _, run := range f.runs {
		if run.WorkflowID == workflowID && len(out) < limit {
			out = append(out, run)
		}
	}
	return out, nil
}

func (f *fakeRunStore) UpdateStatus(ctx context.Context, runID uuid.UUID, status models.RunStatus) error {
	run, ok := f.runs[runID]
	if !ok {
		return notFound("run", runID.String())
	}
	run.Status = status
	return nil
}

type fakeDeploymentStore struct {
	deployments []*models.Deployment
	failCreate  error
}

func newFakeDeploymentStore() *fakeDeploymentStore {
	return &fakeDeploymentStore{}
}

func (f *fakeDeploymentStore) Create(ctx context.Context, d *models.Deployment) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	for _, existing := range f.deployments {
		if existing.WorkflowID == d.WorkflowID && existing.Environment == d.Environment && existing.Status == models.DeploymentActive {
			existing.Status = models.DeploymentSuperseded
		}
	}
	f.deployments = append(f.deployments, d)
	return nil
}

func (f *fakeDeploymentStore) GetActiveByWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.Deployment, error) {
	for i := len(f.deployments) - 1; i >= 0; i-- {
		d := f.deployments[i]
		if d.WorkflowID == workflowID && d.Status == models.DeploymentActive {
			return d, nil
		}
	}
	return nil, notFound("deployment for workflow", workflowID.String())
}

func (f *fakeDeploymentStore) MarkRolledBack(ctx context.Context, workflowID uuid.UUID) (int64, error) {
	var n int64
	for _, d := range f.deployments {
		if d.WorkflowID == workflowID && d.Status == models.DeploymentActive {
			d.Status = models.DeploymentRolledBack
			n++
		}
	}
	return n, nil
}

func (f *fakeDeploymentStore) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]*models.Deployment, error) {
	var out []*models.Deployment
	for i := len(f.deployments) - 1; i >= 0 && len(out) < limit; i-- {
		if f.deployments[i].WorkflowID == workflowID {
			out = append(out, f.deployments[i])
		}
	}
	return out, nil
}

type fakeAuditStore struct {
	records    []*models.AuditRecord
	failCreate error
}

func newFakeAuditStore() *fakeAuditStore {
	return &fakeAuditStore{}
}

func (f *fakeAuditStore) Create(ctx context.Context, record *models.AuditRecord) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeAuditStore) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditRecord, error) {
	var out []*models.AuditRecord
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := f.records[i]
		if r.EntityType == entityType && r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) List(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error) {
	out := make([]*models.AuditRecord, len(f.records))
	copy(out, f.records)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAuditStore) byAction(action string) []*models.AuditRecord {
	var out []*models.AuditRecord
	for _, r := range f.records {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

type fakeAgentStore struct {
	agents     map[string]*models.Agent
	failFilter error
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{agents: make(map[string]*models.Agent)}
}

func (f *fakeAgentStore) Create(ctx context.Context, a *models.Agent) error {
	f.agents[a.ID] = a
	return nil
}

func (f *fakeAgentStore) GetByID(ctx context.Context, id string) (*models.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, notFound("agent", id)
	}
	return a, nil
}

func (f *fakeAgentStore) List(ctx context.Context) ([]*models.Agent, error) {
	var out []*models.Agent
	for _, a := range f.agents {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAgentStore) FilterMissing(ctx context.Context, ids []string) ([]string, error) {
	if f.failFilter != nil {
		return nil, f.failFilter
	}
	var missing []string
	for _, id := range ids {
		if _, ok := f.agents[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (f *fakeAgentStore) Update(ctx context.Context, a *models.Agent) error {
	if _, ok := f.agents[a.ID]; !ok {
		return notFound("agent", a.ID)
	}
	f.agents[a.ID] = a
	return nil
}

func (f *fakeAgentStore) Delete(ctx context.Context, id string) error {
	if _, ok := f.agents[id]; !ok {
		return notFound("agent", id)
	}
	delete(f.agents, id)
	return nil
}

type fakeArtifactStore struct {
	blobs      map[string]*models.ArtifactBlob
	failCreate error
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{blobs: make(map[string]*models.ArtifactBlob)}
}

func (f *fakeArtifactStore) Create(ctx context.Context, blob *models.ArtifactBlob) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	f.blobs[blob.CasID] = blob
	return nil
}

func (f *fakeArtifactStore) GetByID(ctx context.Context, casID string) (*models.ArtifactBlob, error) {
	blob, ok := f.blobs[casID]
	if !ok {
		return nil, notFound("artifact", casID)
	}
	return blob, nil
}

func (f *fakeArtifactStore) Exists(ctx context.Context, casID string) (bool, error) {
	_, ok := f.blobs[casID]
	return ok, nil
}

func (f *fakeArtifactStore) GetContentByID(ctx context.Context, casID string) ([]byte, error) {
	blob, ok := f.blobs[casID]
	if !ok {
		return nil, notFound("artifact", casID)
	}
	return blob.Content, nil
}

type fakeLocker struct {
	held     map[string]string
	failNext error
	releases int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (f *fakeLocker) SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return false, err
	}
	if _, ok := f.held[key]; ok {
		return false, nil
	}
	f.held[key] = value
	return true, nil
}

func (f *fakeLocker) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.held, key)
	}
	f.releases++
	return nil
}

type recordingEvents struct {
	events []string
}

func (r *recordingEvents) Publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	r.events = append(r.events, eventType)
}

// fixture bundles the fakes with service constructors so tests read as
// scenario setup rather than wiring
type fixture struct {
	workflows   *fakeWorkflowStore
	versions    *fakeVersionStore
	branches    *fakeBranchStore
	pipelines   *fakePipelineStore
	runs        *fakeRunStore
	deployments *fakeDeploymentStore
	audits      *fakeAuditStore
	agents      *fakeAgentStore
	blobs       *fakeArtifactStore
	locker      *fakeLocker
	events      *recordingEvents
	log         *logger.Logger
}

func newFixture() *fixture {
	return &fixture{
		workflows:   newFakeWorkflowStore(),
		versions:    newFakeVersionStore(),
		branches:    newFakeBranchStore(),
		pipelines:   newFakePipelineStore(),
		runs:        newFakeRunStore(),
		deployments: newFakeDeploymentStore(),
		audits:      newFakeAuditStore(),
		agents:      newFakeAgentStore(),
		blobs:       newFakeArtifactStore(),
		locker:      newFakeLocker(),
		events:      &recordingEvents{},
		log:         testLogger(),
	}
}

func (f *fixture) workflowService() *WorkflowService {
	return NewWorkflowService(&WorkflowServiceOpts{
		Workflows: f.workflows,
		Versions:  f.versions,
		Branches:  f.branches,
		Audits:    f.audits,
		Events:    f.events,
		Logger:    f.log,
	})
}

func (f *fixture) branchService() *BranchService {
	return NewBranchService(f.branches, f.workflows, f.versions, f.audits, f.log)
}

func (f *fixture) versionService() *VersionService {
	return NewVersionService(&VersionServiceOpts{
		Versions:    f.versions,
		Workflows:   f.workflows,
		Branches:    f.branches,
		Runs:        f.runs,
		Deployments: f.deployments,
		Audits:      f.audits,
		Events:      f.events,
		Logger:      f.log,
	})
}

func (f *fixture) mergeService() *MergeService {
	return NewMergeService(&MergeServiceOpts{
		Branches:  f.branches,
		Versions:  f.versions,
		Workflows: f.workflows,
		Audits:    f.audits,
		Events:    f.events,
		Logger:    f.log,
	})
}

func (f *fixture) pipelineService() *PipelineService {
	return NewPipelineService(&PipelineServiceOpts{
		Pipelines:   f.pipelines,
		Workflows:   f.workflows,
		Versions:    f.versions,
		Agents:      f.agents,
		Deployments: f.deployments,
		Artifacts:   NewArtifactService(f.blobs, f.log),
		Audits:      f.audits,
		Events:      f.events,
		Locker:      f.locker,
		Config: config.PipelineConfig{
			LockTTL:       time.Minute,
			DeployBaseURL: "https://archon.dev",
		},
		Logger: f.log,
	})
}

// seedWorkflow creates a workflow through the service so the initial
// version and default branch exist like they would in production
func (f *fixture) seedWorkflow(t *testing.T, rawSpec string) *models.Workflow {
	t.Helper()
	w, err := f.workflowService().Create(context.Background(), &CreateWorkflowRequest{
		Name: "Demo Workflow",
		Spec: json.RawMessage(rawSpec),
	})
	if err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
	return w
}

// seedBranch adds a branch whose head is a fresh version with the given
// spec, bypassing the service
func (f *fixture) seedBranch(t *testing.T, w *models.Workflow, name, rawSpec, version string) *models.WorkflowBranch {
	t.Helper()
	v := &models.WorkflowVersion{
		ID:         uuid.New(),
		WorkflowID: w.ID,
		Version:    version,
		Spec:       json.RawMessage(rawSpec),
		CreatedAt:  time.Now(),
	}
	if err := f.versions.Create(context.Background(), v); err != nil {
		t.Fatalf("seed version: %v", err)
	}

	now := time.Now()
	b := &models.WorkflowBranch{
		ID:            uuid.New(),
		WorkflowID:    w.ID,
		Name:          name,
		HeadVersionID: &v.ID,
		Status:        models.BranchStatusActive,
		RowVersion:    1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	v.BranchID = &b.ID
	if err := f.branches.Create(context.Background(), b); err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	return b
}

func (f *fixture) defaultBranch(t *testing.T, workflowID uuid.UUID) *models.WorkflowBranch {
	t.Helper()
	b, err := f.branches.GetDefault(context.Background(), workflowID)
	if err != nil {
		t.Fatalf("default branch: %v", err)
	}
	return b
}
