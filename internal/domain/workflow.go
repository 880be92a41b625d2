package domain

import (
	"encoding/json"
	"time"
)

// Workflow status constants.
const (
	StatusPending     = "pending"
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusRollingBack = "rolling_back"
	StatusRolledBack  = "rolled_back"
	StatusCompensated = "compensated"
)

// Workflow type constants. The orchestrator only executes types registered
// at startup; anything else is rejected before a workflow leaves pending.
const (
	TypeProvision       = "provision"
	TypeDeprovision     = "deprovision"
	TypeActivateService = "activate-service"
	TypeSuspendService  = "suspend-service"
)

// Workflow represents one saga instance: a multi-step business operation
// executed across external systems with compensation on failure.
type Workflow struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Type       string `json:"type"`
	Status     string `json:"status"`

	TenantID      string `json:"tenant_id"`
	InitiatorID   string `json:"initiator_id,omitempty"`
	InitiatorKind string `json:"initiator_kind,omitempty"`

	// Input is the immutable snapshot of the request that created the
	// workflow. Output is set only when the workflow completes. Context is
	// the scratchpad accumulated across steps.
	Input   json.RawMessage `json:"input"`
	Output  json.RawMessage `json:"output,omitempty"`
	Context WorkflowContext `json:"context"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	CompensationStartedAt   *time.Time `json:"compensation_started_at,omitempty"`
	CompensationCompletedAt *time.Time `json:"compensation_completed_at,omitempty"`
	CompensationError       string     `json:"compensation_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Steps is populated on detail reads; list queries leave it empty.
	Steps []WorkflowStep `json:"steps,omitempty"`
}

// IsTerminal returns true if the workflow has reached a final state.
// A failed workflow is not terminal: it may still be retried.
func (w *Workflow) IsTerminal() bool {
	return w.Status == StatusCompleted || w.Status == StatusRolledBack || w.Status == StatusCompensated
}

// CanRetry returns true if the workflow is in a retryable state.
func (w *Workflow) CanRetry() bool {
	return w.Status == StatusFailed && w.RetryCount < w.MaxRetries
}

// CanCancel returns true if the workflow may be cancelled (compensated).
func (w *Workflow) CanCancel() bool {
	return w.Status == StatusRunning || w.Status == StatusPending
}

// ValidTypes returns the closed set of workflow types.
func ValidTypes() []string {
	return []string{TypeProvision, TypeDeprovision, TypeActivateService, TypeSuspendService}
}

// IsValidType checks whether the given workflow type is known.
func IsValidType(t string) bool {
	for _, v := range ValidTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ValidStatuses returns the set of valid workflow statuses.
func ValidStatuses() []string {
	return []string{
		StatusPending,
		StatusRunning,
		StatusCompleted,
		StatusFailed,
		StatusRollingBack,
		StatusRolledBack,
		StatusCompensated,
	}
}

// IsValidStatus checks whether the given status string is a valid workflow status.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// Duration returns the wall-clock time from start to completion or failure,
// or zero if the workflow has not finished.
func (w *Workflow) Duration() time.Duration {
	if w.StartedAt == nil {
		return 0
	}
	switch {
	case w.CompletedAt != nil:
		return w.CompletedAt.Sub(*w.StartedAt)
	case w.FailedAt != nil:
		return w.FailedAt.Sub(*w.StartedAt)
	default:
		return 0
	}
}
