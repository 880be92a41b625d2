package saga

import (
	"context"
	"encoding/json"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
)

// Action executes a step's forward operation. It receives the accumulated
// workflow context (read-only by convention; outputs flow back through the
// result) and the workflow's immutable input snapshot. A non-nil error is
// the only failure signal; the orchestrator retries and then compensates.
type Action func(ctx context.Context, wctx *domain.WorkflowContext, input json.RawMessage) (StepResult, error)

// Compensator semantically undoes a completed step. It receives the
// compensation data captured when the forward action succeeded, plus the
// workflow context. It must not assume the remote side effect is still
// present and must be safe to call zero or one times.
type Compensator func(ctx context.Context, data domain.WorkflowContext, wctx *domain.WorkflowContext) error

// StepResult is what a successful action returns: the context fragment to
// merge into the workflow context, and everything its compensator would need
// to undo the step.
type StepResult struct {
	Output           domain.WorkflowContext
	CompensationData domain.WorkflowContext
}

// StepDefinition describes one step of a workflow definition.
type StepDefinition struct {
	Name         string
	Kind         string
	TargetSystem string

	// MaxRetries bounds re-attempts of the action after its first failure.
	MaxRetries int
	Backoff    BackoffPolicy

	Action     Action
	Compensate Compensator
}

// WorkflowDefinition is the ordered program the orchestrator interprets
// against a workflow record. Definitions are in-memory only and built once
// at startup.
type WorkflowDefinition struct {
	Type string

	// MaxRetries bounds workflow-level retries of a failed workflow.
	MaxRetries int

	Steps []StepDefinition
}

// StepByName returns the step definition with the given name.
func (d WorkflowDefinition) StepByName(name string) (StepDefinition, bool) {
	for _, s := range d.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepDefinition{}, false
}
