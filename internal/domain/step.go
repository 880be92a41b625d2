package domain

import (
	"encoding/json"
	"time"
)

// Workflow step status constants.
const (
	StepStatusPending            = "pending"
	StepStatusRunning            = "running"
	StepStatusCompleted          = "completed"
	StepStatusFailed             = "failed"
	StepStatusSkipped            = "skipped"
	StepStatusCompensating       = "compensating"
	StepStatusCompensated        = "compensated"
	StepStatusCompensationFailed = "compensation_failed"
)

// Step kind constants.
const (
	StepKindExternalAPI = "external-api"
	StepKindDatabase    = "database"
)

// WorkflowStep is one unit of work within a workflow. Steps are created by
// the orchestrator immediately before their first execution attempt and
// mutated only by the orchestrator.
type WorkflowStep struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	StepOrder  int    `json:"step_order"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`

	// TargetSystem names the external system the step acts on
	// (e.g. "billing", "ip-allocation", "optical-network").
	TargetSystem string `json:"target_system"`

	Status string `json:"status"`

	Input json.RawMessage `json:"input,omitempty"`

	// Output is the context fragment the action produced; it is merged into
	// the workflow context when the step completes. CompensationData is
	// captured at the moment the action succeeds and holds everything the
	// compensator needs to undo the step.
	Output           WorkflowContext `json:"output"`
	CompensationData WorkflowContext `json:"compensation_data"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// IdempotencyKey is unique across the whole store; replay detection
	// keys off it to skip steps that already completed.
	IdempotencyKey string `json:"idempotency_key"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	CompensationStartedAt   *time.Time `json:"compensation_started_at,omitempty"`
	CompensationCompletedAt *time.Time `json:"compensation_completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepIdempotencyKey derives the idempotency key for a step of a workflow.
// One workflow instance executes each named step at most once, so the pair
// is unique and stable across retries and process restarts.
func StepIdempotencyKey(workflowID, stepName string) string {
	return workflowID + ":" + stepName
}

// IsTerminal returns true if the step is in a final state.
func (s *WorkflowStep) IsTerminal() bool {
	switch s.Status {
	case StepStatusCompleted, StepStatusSkipped, StepStatusCompensated, StepStatusCompensationFailed:
		return true
	}
	return false
}

// ValidStepStatuses returns the set of valid step statuses.
func ValidStepStatuses() []string {
	return []string{
		StepStatusPending,
		StepStatusRunning,
		StepStatusCompleted,
		StepStatusFailed,
		StepStatusSkipped,
		StepStatusCompensating,
		StepStatusCompensated,
		StepStatusCompensationFailed,
	}
}
