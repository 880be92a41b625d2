package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/database"
	apperrors "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/errors"
)

const stepColumns = `id, workflow_id, step_order, name, kind, target_system, status,
		input, output, compensation_data, error_message, error_details,
		retry_count, max_retries, idempotency_key,
		started_at, completed_at, failed_at,
		compensation_started_at, compensation_completed_at,
		created_at, updated_at`

// StepRepository implements repository.StepRepository using PostgreSQL.
type StepRepository struct {
	pool database.DBTX
}

// NewStepRepository creates a new PostgreSQL-backed workflow step repository.
func NewStepRepository(pool database.DBTX) *StepRepository {
	return &StepRepository{pool: pool}
}

// Create inserts a new workflow step. The idempotency key carries a unique
// constraint; a duplicate insert surfaces as an already-exists error so the
// orchestrator can fall back to replay detection.
func (r *StepRepository) Create(ctx context.Context, step *domain.WorkflowStep) error {
	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("marshal step output: %w", err)
	}
	compJSON, err := json.Marshal(step.CompensationData)
	if err != nil {
		return fmt.Errorf("marshal step compensation data: %w", err)
	}

	query := `
		INSERT INTO workflow_steps (
			id, workflow_id, step_order, name, kind, target_system, status,
			input, output, compensation_data, error_message, error_details,
			retry_count, max_retries, idempotency_key,
			started_at, completed_at, failed_at,
			compensation_started_at, compensation_completed_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18,
			$19, $20,
			$21, $22
		)`

	_, err = r.pool.Exec(ctx, query,
		step.ID,
		step.WorkflowID,
		step.StepOrder,
		step.Name,
		step.Kind,
		step.TargetSystem,
		step.Status,
		nullableJSON(step.Input),
		outputJSON,
		compJSON,
		nullableString(step.ErrorMessage),
		nullableString(step.ErrorDetails),
		step.RetryCount,
		step.MaxRetries,
		step.IdempotencyKey,
		step.StartedAt,
		step.CompletedAt,
		step.FailedAt,
		step.CompensationStartedAt,
		step.CompensationCompletedAt,
		step.CreatedAt,
		step.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("workflow step", "idempotency_key", step.IdempotencyKey)
		}
		return fmt.Errorf("insert workflow step: %w", err)
	}

	return nil
}

// Update persists the current state of a step.
func (r *StepRepository) Update(ctx context.Context, step *domain.WorkflowStep) error {
	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("marshal step output: %w", err)
	}
	compJSON, err := json.Marshal(step.CompensationData)
	if err != nil {
		return fmt.Errorf("marshal step compensation data: %w", err)
	}

	step.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE workflow_steps
		SET status = $1, output = $2, compensation_data = $3,
			error_message = $4, error_details = $5, retry_count = $6,
			started_at = $7, completed_at = $8, failed_at = $9,
			compensation_started_at = $10, compensation_completed_at = $11,
			updated_at = $12
		WHERE id = $13`

	ct, err := r.pool.Exec(ctx, query,
		step.Status,
		outputJSON,
		compJSON,
		nullableString(step.ErrorMessage),
		nullableString(step.ErrorDetails),
		step.RetryCount,
		step.StartedAt,
		step.CompletedAt,
		step.FailedAt,
		step.CompensationStartedAt,
		step.CompensationCompletedAt,
		step.UpdatedAt,
		step.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow step: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("workflow step", step.ID)
	}

	return nil
}

// GetByIdempotencyKey retrieves a step by its idempotency key.
func (r *StepRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.WorkflowStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_steps WHERE idempotency_key = $1`, stepColumns)

	row := r.pool.QueryRow(ctx, query, key)
	step, err := scanStepFrom(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan workflow step: %w", err)
	}
	return step, nil
}

// ListByWorkflowID returns all steps of a workflow ordered by step_order.
func (r *StepRepository) ListByWorkflowID(ctx context.Context, workflowID string) ([]domain.WorkflowStep, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order ASC`, stepColumns)

	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", err)
	}
	defer rows.Close()

	steps := make([]domain.WorkflowStep, 0)
	for rows.Next() {
		step, err := scanStepFrom(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan workflow step row: %w", err)
		}
		steps = append(steps, *step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow step rows: %w", err)
	}

	return steps, nil
}

func scanStepFrom(scan func(...any) error) (*domain.WorkflowStep, error) {
	var (
		step       domain.WorkflowStep
		input      []byte
		output     []byte
		compData   []byte
		errMessage *string
		errDetails *string
	)

	if err := scan(
		&step.ID,
		&step.WorkflowID,
		&step.StepOrder,
		&step.Name,
		&step.Kind,
		&step.TargetSystem,
		&step.Status,
		&input,
		&output,
		&compData,
		&errMessage,
		&errDetails,
		&step.RetryCount,
		&step.MaxRetries,
		&step.IdempotencyKey,
		&step.StartedAt,
		&step.CompletedAt,
		&step.FailedAt,
		&step.CompensationStartedAt,
		&step.CompensationCompletedAt,
		&step.CreatedAt,
		&step.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(input) > 0 && string(input) != "null" {
		step.Input = json.RawMessage(input)
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &step.Output); err != nil {
			return nil, fmt.Errorf("unmarshal step output: %w", err)
		}
	}
	if len(compData) > 0 {
		if err := json.Unmarshal(compData, &step.CompensationData); err != nil {
			return nil, fmt.Errorf("unmarshal step compensation data: %w", err)
		}
	}

	if errMessage != nil {
		step.ErrorMessage = *errMessage
	}
	if errDetails != nil {
		step.ErrorDetails = *errDetails
	}

	return &step, nil
}
