package types

import (
	"time"
)

// RunStatus represents the overall state of a run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is a single execution of a workflow graph, as persisted by the run
// store. Graph is a snapshot taken at submission time so later edits to the
// workflow do not affect an in-flight run.
type Run struct {
	ID         string             `json:"id"`
	WorkflowID string             `json:"workflow_id,omitempty"`
	Status     RunStatus          `json:"status"`
	Graph      *Graph             `json:"graph,omitempty"`
	Inputs     map[string]any     `json:"inputs,omitempty"`
	Result     *WorkflowRunResult `json:"result,omitempty"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// RunMeta is a lightweight representation of a run for listing.
type RunMeta struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id,omitempty"`
	Status     RunStatus  `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
