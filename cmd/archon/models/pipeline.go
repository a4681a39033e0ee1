package models

import (
	"time"

	"github.com/google/uuid"
)

// PipelineStage identifies one stage type of the deployment pipeline
type PipelineStage string

const (
	StageLint   PipelineStage = "lint"
	StageTest   PipelineStage = "test"
	StageBuild  PipelineStage = "build"
	StageDeploy PipelineStage = "deploy"
)

// StageOrder returns the standard stage types in execution order
func StageOrder() []PipelineStage {
	return []PipelineStage{StageLint, StageTest, StageBuild, StageDeploy}
}

// StageDef is one configured stage of a pipeline. Stages execute in
// ascending Order; orders must be unique within a pipeline.
type StageDef struct {
	Name   string                 `json:"name"`
	Type   PipelineStage          `json:"type"`
	Order  int                    `json:"order"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// Skipped reports whether the stage is disabled via config ("skip": true)
func (d StageDef) Skipped() bool {
	skip, ok := d.Config["skip"].(bool)
	return ok && skip
}

// DefaultStages returns the standard lint/test/build/deploy sequence used
// when a pipeline is created without an explicit stage list
func DefaultStages() []StageDef {
	types := StageOrder()
	stages := make([]StageDef, 0, len(types))
	for i, t := range types {
		stages = append(stages, StageDef{
			Name:  string(t),
			Type:  t,
			Order: i + 1,
		})
	}
	return stages
}

// Pipeline is a named stage sequence attached to a workflow.
// Maps to: pipeline table (stages and last_run stored as JSONB).
type Pipeline struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	WorkflowID uuid.UUID  `db:"workflow_id" json:"workflow_id"`
	Name       string     `db:"name" json:"name"`
	Stages     []StageDef `db:"stages" json:"stages"`

	// Summary of the most recent invocation; runs are not persisted
	// individually
	LastRun *PipelineRun `db:"last_run" json:"last_run,omitempty"`

	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StageStatus is the recorded outcome of a pipeline stage. Stages after a
// failure never run and produce no result at all; "skipped" is recorded only
// for stages disabled through their config.
type StageStatus string

const (
	StagePassed  StageStatus = "passed"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// IssueSeverity classifies lint findings. Only error-severity issues fail
// the lint stage; warnings are reported but don't block.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// LintIssue is a single finding from the lint stage
type LintIssue struct {
	Severity IssueSeverity `json:"severity"`
	NodeID   string        `json:"node_id,omitempty"`
	Message  string        `json:"message"`
}

// IsBlocking returns true if the issue fails the lint stage
func (i LintIssue) IsBlocking() bool {
	return i.Severity == SeverityError
}

// TestCheck is one verification performed by the test stage
type TestCheck struct {
	Name    string      `json:"name"`
	Status  StageStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// StageResult is the outcome of one executed pipeline stage
type StageResult struct {
	Stage      PipelineStage          `json:"stage"`
	Name       string                 `json:"name,omitempty"`
	Status     StageStatus            `json:"status"`
	Issues     []LintIssue            `json:"issues,omitempty"`
	Checks     []TestCheck            `json:"checks,omitempty"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
}

// PipelineRunStatus is the overall outcome of a pipeline invocation
type PipelineRunStatus string

const (
	PipelineSuccess PipelineRunStatus = "success"
	PipelineFailed  PipelineRunStatus = "failed"
)

// PipelineRun summarizes one invocation of a pipeline. It is embedded in
// the pipeline row's last_run column rather than persisted per invocation.
type PipelineRun struct {
	ID         uuid.UUID `json:"id"`
	PipelineID uuid.UUID `json:"pipeline_id"`
	WorkflowID uuid.UUID `json:"workflow_id"`

	Status PipelineRunStatus `json:"status"`
	Stages []StageResult     `json:"stages"`

	DurationMS int64 `json:"duration_ms"`

	TriggeredBy *string   `json:"triggered_by,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Succeeded returns true if every executed stage passed
func (p *PipelineRun) Succeeded() bool {
	return p.Status == PipelineSuccess
}

// FailedStage returns the stage that halted the run, if any
func (p *PipelineRun) FailedStage() (PipelineStage, bool) {
	for _, result := range p.Stages {
		if result.Status == StageFailed {
			return result.Stage, true
		}
	}
	return "", false
}
