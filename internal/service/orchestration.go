package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/event"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/repository"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/saga"
	apperrors "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/errors"
)

// Engine is the saga orchestrator surface the service drives.
// *saga.Orchestrator satisfies this.
type Engine interface {
	Execute(ctx context.Context, wf *domain.Workflow, def saga.WorkflowDefinition) (*domain.Workflow, error)
	Compensate(ctx context.Context, wf *domain.Workflow, def saga.WorkflowDefinition) (*domain.Workflow, error)
	Retry(ctx context.Context, wf *domain.Workflow, def saga.WorkflowDefinition) (*domain.Workflow, error)
	Resume(ctx context.Context, wf *domain.Workflow, def saga.WorkflowDefinition) (*domain.Workflow, error)
}

// StatisticsCache caches the aggregate statistics projection.
// The redis-backed implementation satisfies this.
type StatisticsCache interface {
	Get(ctx context.Context) (*domain.WorkflowStatistics, error)
	Set(ctx context.Context, stats *domain.WorkflowStatistics) error
	Invalidate(ctx context.Context) error
}

// businessPrefixes gives each workflow type a short, human-readable business
// id prefix.
var businessPrefixes = map[string]string{
	domain.TypeProvision:       "PROV",
	domain.TypeDeprovision:     "DEPROV",
	domain.TypeActivateService: "ACT",
	domain.TypeSuspendService:  "SUSP",
}

// OrchestrationService is the façade over the saga engine: it turns typed
// business requests into workflow records, runs them, and exposes query,
// retry, cancel and statistics operations.
type OrchestrationService struct {
	workflows repository.WorkflowRepository
	steps     repository.StepRepository
	registry  *saga.Registry
	engine    Engine
	producer  *event.Producer
	stats     StatisticsCache
	logger    *slog.Logger
}

// NewOrchestrationService creates the orchestration façade.
func NewOrchestrationService(
	workflows repository.WorkflowRepository,
	steps repository.StepRepository,
	registry *saga.Registry,
	engine Engine,
	producer *event.Producer,
	stats StatisticsCache,
	logger *slog.Logger,
) *OrchestrationService {
	return &OrchestrationService{
		workflows: workflows,
		steps:     steps,
		registry:  registry,
		engine:    engine,
		producer:  producer,
		stats:     stats,
		logger:    logger,
	}
}

// CreateWorkflowInput holds the envelope for starting a workflow. Request is
// the typed, already-validated business request; it is snapshotted into the
// workflow's immutable input.
type CreateWorkflowInput struct {
	Type          string
	TenantID      string
	InitiatorID   string
	InitiatorKind string
	Request       any
}

// CreateAndRun creates a workflow record from the input and executes it to
// its final state. The returned workflow is completed, rolled_back, or failed;
// saga-level failures are expressed through the status, not the error.
func (s *OrchestrationService) CreateAndRun(ctx context.Context, input CreateWorkflowInput) (*domain.Workflow, error) {
	if input.TenantID == "" {
		return nil, apperrors.InvalidInput("tenant id is required")
	}

	// Reject unknown types before anything is persisted.
	def, err := s.registry.Lookup(input.Type)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(input.Request)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow input: %w", err)
	}

	now := time.Now().UTC()
	wf := &domain.Workflow{
		ID:            uuid.New().String(),
		BusinessID:    newBusinessID(input.Type),
		Type:          input.Type,
		Status:        domain.StatusPending,
		TenantID:      input.TenantID,
		InitiatorID:   input.InitiatorID,
		InitiatorKind: input.InitiatorKind,
		Input:         snapshot,
		MaxRetries:    def.MaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	// Publish event; log but do not fail on error.
	if err := s.producer.PublishWorkflowCreated(ctx, wf); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish workflow.created event",
			slog.String("workflow_id", wf.ID),
			slog.String("error", err.Error()),
		)
	}

	wf, err = s.engine.Execute(ctx, wf, def)
	if err != nil {
		return nil, fmt.Errorf("execute workflow: %w", err)
	}

	s.afterRun(ctx, wf)
	return wf, nil
}

// Get retrieves a workflow by its business id, with steps populated.
func (s *OrchestrationService) Get(ctx context.Context, businessID string) (*domain.Workflow, error) {
	wf, err := s.workflows.GetByBusinessID(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	steps, err := s.steps.ListByWorkflowID(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", err)
	}
	wf.Steps = steps

	return wf, nil
}

// List returns workflows matching the filter along with the total count.
func (s *OrchestrationService) List(ctx context.Context, filter repository.WorkflowFilter) ([]domain.Workflow, int, error) {
	if filter.Type != nil && !domain.IsValidType(*filter.Type) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid workflow type %q", *filter.Type))
	}
	if filter.Status != nil && !domain.IsValidStatus(*filter.Status) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid workflow status %q", *filter.Status))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}

	workflows, total, err := s.workflows.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list workflows: %w", err)
	}
	return workflows, total, nil
}

// Retry re-runs a failed workflow from its failed step.
func (s *OrchestrationService) Retry(ctx context.Context, businessID string) (*domain.Workflow, error) {
	wf, err := s.workflows.GetByBusinessID(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("get workflow for retry: %w", err)
	}

	def, err := s.registry.Lookup(wf.Type)
	if err != nil {
		return nil, err
	}

	wf, err = s.engine.Retry(ctx, wf, def)
	if err != nil {
		return nil, err
	}

	s.afterRun(ctx, wf)
	return wf, nil
}

// Cancel compensates a pending or running workflow, rolling back whatever
// steps have completed so far.
func (s *OrchestrationService) Cancel(ctx context.Context, businessID string) (*domain.Workflow, error) {
	wf, err := s.workflows.GetByBusinessID(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("get workflow for cancellation: %w", err)
	}

	if !wf.CanCancel() {
		return nil, apperrors.Conflict(fmt.Sprintf("workflow %s is %s and cannot be cancelled", wf.BusinessID, wf.Status))
	}

	def, err := s.registry.Lookup(wf.Type)
	if err != nil {
		return nil, err
	}

	wf.ErrorMessage = "cancelled by operator"
	wf, err = s.engine.Compensate(ctx, wf, def)
	if err != nil {
		return nil, fmt.Errorf("compensate workflow: %w", err)
	}

	s.logger.InfoContext(ctx, "workflow cancelled",
		slog.String("workflow_id", wf.ID),
		slog.String("business_id", wf.BusinessID),
		slog.String("status", wf.Status),
	)

	s.afterRun(ctx, wf)
	return wf, nil
}

// Statistics returns the aggregate workflow projection, served from the
// cache when a fresh snapshot is available.
func (s *OrchestrationService) Statistics(ctx context.Context) (*domain.WorkflowStatistics, error) {
	if cached, err := s.stats.Get(ctx); err == nil {
		return cached, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.WarnContext(ctx, "statistics cache read failed",
			slog.String("error", err.Error()),
		)
	}

	stats, err := s.workflows.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute workflow statistics: %w", err)
	}

	if err := s.stats.Set(ctx, stats); err != nil {
		s.logger.WarnContext(ctx, "statistics cache write failed",
			slog.String("error", err.Error()),
		)
	}

	return stats, nil
}

// ResumeIncomplete finds workflows left running or rolling_back by a previous
// process and drives each to a final state. Called once at startup. A
// workflow that fails to resume is logged and skipped so one poisoned record
// cannot block the rest.
func (s *OrchestrationService) ResumeIncomplete(ctx context.Context) (int, error) {
	incomplete, err := s.workflows.ListByStatuses(ctx, []string{domain.StatusRunning, domain.StatusRollingBack})
	if err != nil {
		return 0, fmt.Errorf("list incomplete workflows: %w", err)
	}

	resumed := 0
	for i := range incomplete {
		wf := incomplete[i]

		def, err := s.registry.Lookup(wf.Type)
		if err != nil {
			s.logger.ErrorContext(ctx, "cannot resume workflow of unknown type",
				slog.String("workflow_id", wf.ID),
				slog.String("type", wf.Type),
			)
			continue
		}

		final, err := s.engine.Resume(ctx, &wf, def)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to resume workflow",
				slog.String("workflow_id", wf.ID),
				slog.String("business_id", wf.BusinessID),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.afterRun(ctx, final)
		resumed++
	}

	if len(incomplete) > 0 {
		s.logger.InfoContext(ctx, "resumed incomplete workflows",
			slog.Int("found", len(incomplete)),
			slog.Int("resumed", resumed),
		)
	}

	return resumed, nil
}

// afterRun publishes the lifecycle event for a finished run and invalidates
// the statistics cache. Both are best-effort.
func (s *OrchestrationService) afterRun(ctx context.Context, wf *domain.Workflow) {
	var err error
	switch wf.Status {
	case domain.StatusCompleted:
		err = s.producer.PublishWorkflowCompleted(ctx, wf)
	case domain.StatusRolledBack:
		err = s.producer.PublishWorkflowRolledBack(ctx, wf)
	case domain.StatusFailed:
		err = s.producer.PublishWorkflowFailed(ctx, wf)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish workflow lifecycle event",
			slog.String("workflow_id", wf.ID),
			slog.String("status", wf.Status),
			slog.String("error", err.Error()),
		)
	}

	if err := s.stats.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "statistics cache invalidation failed",
			slog.String("error", err.Error()),
		)
	}
}

func newBusinessID(workflowType string) string {
	prefix, ok := businessPrefixes[workflowType]
	if !ok {
		prefix = "WF"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
	return prefix + "-" + suffix
}
