package repository

import (
	"context"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
)

// WorkflowFilter defines filter criteria for listing workflows.
type WorkflowFilter struct {
	TenantID *string
	Type     *string
	Status   *string
	Page     int
	PerPage  int
}

// WorkflowRepository defines the interface for workflow persistence operations.
// Workflows are never physically deleted; the table is an append-only audit
// trail mutated in place as the saga advances.
type WorkflowRepository interface {
	// Create inserts a new workflow.
	Create(ctx context.Context, wf *domain.Workflow) error

	// Update persists the current state of a workflow. Called by the
	// orchestrator after every state transition.
	Update(ctx context.Context, wf *domain.Workflow) error

	// GetByID retrieves a workflow by its durable identifier.
	GetByID(ctx context.Context, id string) (*domain.Workflow, error)

	// GetByBusinessID retrieves a workflow by its human-stable business id.
	GetByBusinessID(ctx context.Context, businessID string) (*domain.Workflow, error)

	// List returns workflows matching the filter along with the total count.
	List(ctx context.Context, filter WorkflowFilter) ([]domain.Workflow, int, error)

	// ListByStatuses returns all workflows currently in any of the given
	// statuses. Used at startup to find incomplete workflows to resume.
	ListByStatuses(ctx context.Context, statuses []string) ([]domain.Workflow, error)

	// Statistics computes the aggregate projection over all workflows.
	Statistics(ctx context.Context) (*domain.WorkflowStatistics, error)
}

// StepRepository defines the interface for workflow step persistence.
type StepRepository interface {
	// Create inserts a new workflow step.
	Create(ctx context.Context, step *domain.WorkflowStep) error

	// Update persists the current state of a step.
	Update(ctx context.Context, step *domain.WorkflowStep) error

	// GetByIdempotencyKey retrieves a step by its idempotency key, or a
	// not-found error when no attempt has been recorded yet.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.WorkflowStep, error)

	// ListByWorkflowID returns all steps of a workflow ordered by step_order.
	ListByWorkflowID(ctx context.Context, workflowID string) ([]domain.WorkflowStep, error)
}
