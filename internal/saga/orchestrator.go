package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/repository"
	apperrors "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/errors"
)

// Compensation pass outcomes for metrics.
const (
	compensationOutcomeClean  = "rolled_back"
	compensationOutcomeFailed = "compensation_failed"
)

// Orchestrator drives workflow execution forward step by step and
// compensation backward on failure. Every state transition is persisted
// before the next external call, so a crash loses at most the one in-flight
// call and the workflow can be resumed from the store.
//
// Handler errors never escape Execute/Compensate/Retry; callers observe
// failure through the workflow's status and error message. The returned
// error is reserved for infrastructure failures (persistence, unknown
// definitions).
type Orchestrator struct {
	workflows repository.WorkflowRepository
	steps     repository.StepRepository
	logger    *slog.Logger
	metrics   *Metrics

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates a saga orchestrator.
func NewOrchestrator(
	workflows repository.WorkflowRepository,
	steps repository.StepRepository,
	logger *slog.Logger,
	metrics *Metrics,
) *Orchestrator {
	return &Orchestrator{
		workflows: workflows,
		steps:     steps,
		logger:    logger,
		metrics:   metrics,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs the definition's steps in order against the given workflow.
// The workflow must be pending. The returned workflow carries the final
// status: completed, rolled_back, or failed (with compensation_error when
// the rollback itself was dirty).
func (o *Orchestrator) Execute(ctx context.Context, wf *domain.Workflow, def WorkflowDefinition) (*domain.Workflow, error) {
	if wf.Status != domain.StatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("workflow %s is %s, only pending workflows can be executed", wf.BusinessID, wf.Status))
	}
	if wf.Type != def.Type {
		return nil, apperrors.InvalidInput(fmt.Sprintf("workflow type %q does not match definition %q", wf.Type, def.Type))
	}

	now := time.Now().UTC()
	wf.Status = domain.StatusRunning
	if wf.StartedAt == nil {
		wf.StartedAt = &now
	}
	if err := o.workflows.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("persist workflow start: %w", err)
	}

	o.logger.InfoContext(ctx, "workflow execution started",
		slog.String("workflow_id", wf.ID),
		slog.String("business_id", wf.BusinessID),
		slog.String("type", wf.Type),
		slog.Int("steps", len(def.Steps)),
	)

	return o.runForward(ctx, wf, def)
}

// Resume continues a workflow found in running or rolling_back state after a
// process restart. Running workflows re-enter the forward pass, where replay
// detection turns already-completed steps into no-ops; rolling_back workflows
// re-run the compensation pass.
func (o *Orchestrator) Resume(ctx context.Context, wf *domain.Workflow, def WorkflowDefinition) (*domain.Workflow, error) {
	switch wf.Status {
	case domain.StatusRunning:
		o.logger.InfoContext(ctx, "resuming interrupted workflow",
			slog.String("workflow_id", wf.ID),
			slog.String("business_id", wf.BusinessID),
		)
		return o.runForward(ctx, wf, def)
	case domain.StatusRollingBack:
		o.logger.InfoContext(ctx, "resuming interrupted compensation",
			slog.String("workflow_id", wf.ID),
			slog.String("business_id", wf.BusinessID),
		)
		return o.Compensate(ctx, wf, def)
	default:
		return nil, apperrors.Conflict(fmt.Sprintf("workflow %s is %s, nothing to resume", wf.BusinessID, wf.Status))
	}
}

// Retry re-runs a failed workflow. Only the step that failed is reset; the
// forward pass then resumes from it, replaying completed steps from the
// store instead of re-invoking their actions.
func (o *Orchestrator) Retry(ctx context.Context, wf *domain.Workflow, def WorkflowDefinition) (*domain.Workflow, error) {
	if wf.Status != domain.StatusFailed {
		return nil, apperrors.Conflict(fmt.Sprintf("workflow %s is %s, only failed workflows can be retried", wf.BusinessID, wf.Status))
	}
	if wf.RetryCount >= wf.MaxRetries {
		return nil, apperrors.Conflict(fmt.Sprintf("workflow %s has exhausted its %d retries", wf.BusinessID, wf.MaxRetries))
	}
	if wf.CompensationError != "" {
		return nil, apperrors.Conflict(fmt.Sprintf("workflow %s has a failed compensation and requires manual remediation", wf.BusinessID))
	}

	steps, err := o.steps.ListByWorkflowID(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("load workflow steps: %w", err)
	}

	for i := range steps {
		if steps[i].Status != domain.StepStatusFailed {
			continue
		}
		step := steps[i]
		step.Status = domain.StepStatusPending
		step.RetryCount = 0
		step.ErrorMessage = ""
		step.ErrorDetails = ""
		step.FailedAt = nil
		if err := o.steps.Update(ctx, &step); err != nil {
			return nil, fmt.Errorf("reset failed step: %w", err)
		}
	}

	wf.RetryCount++
	wf.Status = domain.StatusPending
	wf.ErrorMessage = ""
	wf.ErrorDetails = ""
	wf.FailedAt = nil
	if err := o.workflows.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("persist workflow retry: %w", err)
	}

	o.logger.InfoContext(ctx, "retrying failed workflow",
		slog.String("workflow_id", wf.ID),
		slog.String("business_id", wf.BusinessID),
		slog.Int("retry_count", wf.RetryCount),
	)

	return o.Execute(ctx, wf, def)
}

// runForward walks the definition's steps in ascending order.
func (o *Orchestrator) runForward(ctx context.Context, wf *domain.Workflow, def WorkflowDefinition) (*domain.Workflow, error) {
	for i, sd := range def.Steps {
		completed, step, err := o.runStep(ctx, wf, i, sd)
		if err != nil {
			return nil, err
		}
		if completed {
			continue
		}

		// Retries exhausted: fail the workflow and compensate.
		now := time.Now().UTC()
		wf.Status = domain.StatusFailed
		wf.FailedAt = &now
		wf.ErrorMessage = fmt.Sprintf("step %s failed: %s", step.Name, step.ErrorMessage)
		wf.ErrorDetails = step.ErrorDetails
		if err := o.workflows.Update(ctx, wf); err != nil {
			return nil, fmt.Errorf("persist workflow failure: %w", err)
		}

		o.logger.ErrorContext(ctx, "workflow failed, starting compensation",
			slog.String("workflow_id", wf.ID),
			slog.String("business_id", wf.BusinessID),
			slog.String("failed_step", step.Name),
			slog.String("error", step.ErrorMessage),
		)

		o.metrics.ObserveExecution(wf.Type, domain.StatusFailed, wf.Duration())
		return o.Compensate(ctx, wf, def)
	}

	// Every step completed: the output snapshot is the accumulated context.
	output, err := json.Marshal(wf.Context)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow output: %w", err)
	}

	now := time.Now().UTC()
	wf.Status = domain.StatusCompleted
	wf.CompletedAt = &now
	wf.Output = output
	if err := o.workflows.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("persist workflow completion: %w", err)
	}

	o.logger.InfoContext(ctx, "workflow completed",
		slog.String("workflow_id", wf.ID),
		slog.String("business_id", wf.BusinessID),
		slog.String("type", wf.Type),
		slog.Duration("duration", wf.Duration()),
	)

	o.metrics.ObserveExecution(wf.Type, domain.StatusCompleted, wf.Duration())
	return wf, nil
}

// runStep executes one step with replay detection and bounded retries.
// It returns (true, step, nil) when the step is completed (fresh or
// replayed), (false, step, nil) when retries are exhausted, and a non-nil
// error only for persistence failures.
func (o *Orchestrator) runStep(ctx context.Context, wf *domain.Workflow, order int, sd StepDefinition) (bool, *domain.WorkflowStep, error) {
	key := domain.StepIdempotencyKey(wf.ID, sd.Name)

	step, err := o.steps.GetByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		if step.Status == domain.StepStatusCompleted {
			// Replay: the action already ran to completion in an earlier
			// invocation. Merge its recorded output and move on without
			// touching the remote system again.
			wf.Context.Merge(step.Output)
			if err := o.workflows.Update(ctx, wf); err != nil {
				return false, nil, fmt.Errorf("persist replayed context: %w", err)
			}
			o.logger.InfoContext(ctx, "step already completed, replaying output",
				slog.String("workflow_id", wf.ID),
				slog.String("step", sd.Name),
			)
			return true, step, nil
		}
		// A prior attempt was interrupted or failed; take it over.
		now := time.Now().UTC()
		step.Status = domain.StepStatusRunning
		step.StartedAt = &now
		if err := o.steps.Update(ctx, step); err != nil {
			return false, nil, fmt.Errorf("persist step restart: %w", err)
		}
	case errors.Is(err, apperrors.ErrNotFound):
		now := time.Now().UTC()
		step = &domain.WorkflowStep{
			ID:             uuid.New().String(),
			WorkflowID:     wf.ID,
			StepOrder:      order,
			Name:           sd.Name,
			Kind:           sd.Kind,
			TargetSystem:   sd.TargetSystem,
			Status:         domain.StepStatusRunning,
			Input:          wf.Input,
			MaxRetries:     sd.MaxRetries,
			IdempotencyKey: key,
			StartedAt:      &now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := o.steps.Create(ctx, step); err != nil {
			return false, nil, fmt.Errorf("create workflow step: %w", err)
		}
	default:
		return false, nil, fmt.Errorf("look up step by idempotency key: %w", err)
	}

	for {
		result, actionErr := sd.Action(ctx, &wf.Context, wf.Input)
		if actionErr == nil {
			now := time.Now().UTC()
			step.Status = domain.StepStatusCompleted
			step.CompletedAt = &now
			step.Output = result.Output
			step.CompensationData = result.CompensationData
			step.ErrorMessage = ""
			step.ErrorDetails = ""
			if err := o.steps.Update(ctx, step); err != nil {
				return false, nil, fmt.Errorf("persist step completion: %w", err)
			}

			wf.Context.Merge(result.Output)
			if err := o.workflows.Update(ctx, wf); err != nil {
				return false, nil, fmt.Errorf("persist workflow context: %w", err)
			}

			o.logger.InfoContext(ctx, "step completed",
				slog.String("workflow_id", wf.ID),
				slog.String("step", sd.Name),
				slog.String("target_system", sd.TargetSystem),
			)
			return true, step, nil
		}

		step.RetryCount++
		step.ErrorMessage = actionErr.Error()
		if step.RetryCount > step.MaxRetries {
			now := time.Now().UTC()
			step.Status = domain.StepStatusFailed
			step.FailedAt = &now
			if err := o.steps.Update(ctx, step); err != nil {
				return false, nil, fmt.Errorf("persist step failure: %w", err)
			}
			return false, step, nil
		}

		// Persist the attempt before backing off so a crash mid-wait does
		// not lose the retry count.
		if err := o.steps.Update(ctx, step); err != nil {
			return false, nil, fmt.Errorf("persist step retry: %w", err)
		}

		o.metrics.ObserveStepRetry(wf.Type, sd.Name)
		o.logger.WarnContext(ctx, "step failed, retrying",
			slog.String("workflow_id", wf.ID),
			slog.String("step", sd.Name),
			slog.Int("retry", step.RetryCount),
			slog.Int("max_retries", step.MaxRetries),
			slog.String("error", actionErr.Error()),
		)

		if err := o.sleep(ctx, sd.Backoff.Delay(step.RetryCount)); err != nil {
			return false, nil, fmt.Errorf("retry backoff interrupted: %w", err)
		}
	}
}

// Compensate runs compensators for every completed step in descending
// step_order. It is both the automatic failure path and the explicit
// cancellation path. Compensation is best-effort: a failed compensator is
// recorded and the loop continues, but the workflow only reaches rolled_back
// when every step compensated cleanly. Failed compensations are never
// retried automatically; re-running a rollback risks double-compensating an
// external side effect.
func (o *Orchestrator) Compensate(ctx context.Context, wf *domain.Workflow, def WorkflowDefinition) (*domain.Workflow, error) {
	steps, err := o.steps.ListByWorkflowID(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("load workflow steps: %w", err)
	}

	now := time.Now().UTC()
	wf.Status = domain.StatusRollingBack
	if wf.CompensationStartedAt == nil {
		wf.CompensationStartedAt = &now
	}
	if err := o.workflows.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("persist rollback start: %w", err)
	}

	clean := true
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if step.Status != domain.StepStatusCompleted {
			// Previously compensated steps stay as they are; a resumed
			// rollback only touches what is still completed.
			if step.Status == domain.StepStatusCompensationFailed {
				clean = false
			}
			continue
		}

		sd, ok := def.StepByName(step.Name)
		if !ok {
			// A definition change removed the step; there is nothing that
			// knows how to undo it.
			clean = false
			step.Status = domain.StepStatusCompensationFailed
			step.ErrorMessage = fmt.Sprintf("no compensator registered for step %s", step.Name)
			if err := o.steps.Update(ctx, &step); err != nil {
				return nil, fmt.Errorf("persist compensation failure: %w", err)
			}
			continue
		}

		stepNow := time.Now().UTC()
		step.Status = domain.StepStatusCompensating
		step.CompensationStartedAt = &stepNow
		if err := o.steps.Update(ctx, &step); err != nil {
			return nil, fmt.Errorf("persist compensation start: %w", err)
		}

		compErr := sd.Compensate(ctx, step.CompensationData, &wf.Context)
		done := time.Now().UTC()
		if compErr != nil {
			clean = false
			step.Status = domain.StepStatusCompensationFailed
			step.ErrorMessage = compErr.Error()
			o.logger.ErrorContext(ctx, "step compensation failed",
				slog.String("workflow_id", wf.ID),
				slog.String("step", step.Name),
				slog.String("error", compErr.Error()),
			)
			if wf.CompensationError == "" {
				wf.CompensationError = fmt.Sprintf("compensation of step %s failed: %s", step.Name, compErr.Error())
			}
		} else {
			step.Status = domain.StepStatusCompensated
			step.CompensationCompletedAt = &done
			o.logger.InfoContext(ctx, "step compensated",
				slog.String("workflow_id", wf.ID),
				slog.String("step", step.Name),
			)
		}
		if err := o.steps.Update(ctx, &step); err != nil {
			return nil, fmt.Errorf("persist compensation result: %w", err)
		}
	}

	end := time.Now().UTC()
	if clean {
		wf.Status = domain.StatusRolledBack
		wf.CompensationCompletedAt = &end
		o.metrics.ObserveCompensation(wf.Type, compensationOutcomeClean)
	} else {
		// Worst outcome wins: the workflow stays failed and surfaces the
		// compensation error for manual remediation.
		wf.Status = domain.StatusFailed
		o.metrics.ObserveCompensation(wf.Type, compensationOutcomeFailed)
	}
	if err := o.workflows.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("persist rollback result: %w", err)
	}

	o.logger.InfoContext(ctx, "compensation pass finished",
		slog.String("workflow_id", wf.ID),
		slog.String("business_id", wf.BusinessID),
		slog.String("status", wf.Status),
	)

	return wf, nil
}
