package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/repository"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/database"
	apperrors "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/errors"
)

const workflowColumns = `id, business_id, type, status, tenant_id, initiator_id, initiator_kind,
		input, output, context, error_message, error_details, retry_count, max_retries,
		started_at, completed_at, failed_at,
		compensation_started_at, compensation_completed_at, compensation_error,
		created_at, updated_at`

// WorkflowRepository implements repository.WorkflowRepository using PostgreSQL.
type WorkflowRepository struct {
	pool database.DBTX
}

// NewWorkflowRepository creates a new PostgreSQL-backed workflow repository.
func NewWorkflowRepository(pool database.DBTX) *WorkflowRepository {
	return &WorkflowRepository{pool: pool}
}

// Create inserts a new workflow.
func (r *WorkflowRepository) Create(ctx context.Context, wf *domain.Workflow) error {
	contextJSON, err := json.Marshal(wf.Context)
	if err != nil {
		return fmt.Errorf("marshal workflow context: %w", err)
	}

	query := `
		INSERT INTO workflows (
			id, business_id, type, status, tenant_id, initiator_id, initiator_kind,
			input, output, context, error_message, error_details, retry_count, max_retries,
			started_at, completed_at, failed_at,
			compensation_started_at, compensation_completed_at, compensation_error,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17,
			$18, $19, $20,
			$21, $22
		)`

	_, err = r.pool.Exec(ctx, query,
		wf.ID,
		wf.BusinessID,
		wf.Type,
		wf.Status,
		wf.TenantID,
		nullableString(wf.InitiatorID),
		nullableString(wf.InitiatorKind),
		[]byte(wf.Input),
		nullableJSON(wf.Output),
		contextJSON,
		nullableString(wf.ErrorMessage),
		nullableString(wf.ErrorDetails),
		wf.RetryCount,
		wf.MaxRetries,
		wf.StartedAt,
		wf.CompletedAt,
		wf.FailedAt,
		wf.CompensationStartedAt,
		wf.CompensationCompletedAt,
		nullableString(wf.CompensationError),
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("workflow", "business_id", wf.BusinessID)
		}
		return fmt.Errorf("insert workflow: %w", err)
	}

	return nil
}

// Update persists the current state of a workflow.
func (r *WorkflowRepository) Update(ctx context.Context, wf *domain.Workflow) error {
	contextJSON, err := json.Marshal(wf.Context)
	if err != nil {
		return fmt.Errorf("marshal workflow context: %w", err)
	}

	wf.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE workflows
		SET status = $1, output = $2, context = $3,
			error_message = $4, error_details = $5, retry_count = $6,
			started_at = $7, completed_at = $8, failed_at = $9,
			compensation_started_at = $10, compensation_completed_at = $11, compensation_error = $12,
			updated_at = $13
		WHERE id = $14`

	ct, err := r.pool.Exec(ctx, query,
		wf.Status,
		nullableJSON(wf.Output),
		contextJSON,
		nullableString(wf.ErrorMessage),
		nullableString(wf.ErrorDetails),
		wf.RetryCount,
		wf.StartedAt,
		wf.CompletedAt,
		wf.FailedAt,
		wf.CompensationStartedAt,
		wf.CompensationCompletedAt,
		nullableString(wf.CompensationError),
		wf.UpdatedAt,
		wf.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("workflow", wf.ID)
	}

	return nil
}

// GetByID retrieves a workflow by its durable identifier.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflows WHERE id = $1`, workflowColumns)
	return r.scanWorkflow(ctx, query, id)
}

// GetByBusinessID retrieves a workflow by its human-stable business id.
func (r *WorkflowRepository) GetByBusinessID(ctx context.Context, businessID string) (*domain.Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflows WHERE business_id = $1`, workflowColumns)
	return r.scanWorkflow(ctx, query, businessID)
}

// List returns workflows matching the given filter with the total count.
func (r *WorkflowRepository) List(ctx context.Context, filter repository.WorkflowFilter) ([]domain.Workflow, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   int = 1
	)

	if filter.TenantID != nil {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, *filter.TenantID)
		argIndex++
	}

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, *filter.Type)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Use count(*) OVER() for total count in a single query.
	query := fmt.Sprintf(`
		SELECT %s,
			   count(*) OVER() AS total_count
		FROM workflows
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		workflowColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var totalCount int
	workflows := make([]domain.Workflow, 0)

	for rows.Next() {
		wf, err := scanWorkflowRow(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan workflow row: %w", err)
		}
		workflows = append(workflows, *wf)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate workflow rows: %w", err)
	}

	return workflows, totalCount, nil
}

// ListByStatuses returns all workflows in any of the given statuses, oldest first.
func (r *WorkflowRepository) ListByStatuses(ctx context.Context, statuses []string) ([]domain.Workflow, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM workflows
		WHERE status = ANY($1)
		ORDER BY created_at ASC`, workflowColumns)

	rows, err := r.pool.Query(ctx, query, statuses)
	if err != nil {
		return nil, fmt.Errorf("list workflows by statuses: %w", err)
	}
	defer rows.Close()

	workflows := make([]domain.Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflowRow(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("scan workflow row: %w", err)
		}
		workflows = append(workflows, *wf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow rows: %w", err)
	}

	return workflows, nil
}

// Statistics computes the aggregate projection over all workflows.
func (r *WorkflowRepository) Statistics(ctx context.Context) (*domain.WorkflowStatistics, error) {
	stats := &domain.WorkflowStatistics{
		ByStatus: make(map[string]int64),
		ByType:   make(map[string]int64),
	}

	statusQuery := `SELECT status, count(*) FROM workflows GROUP BY status`
	rows, err := r.pool.Query(ctx, statusQuery)
	if err != nil {
		return nil, fmt.Errorf("count workflows by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	typeQuery := `SELECT type, count(*) FROM workflows GROUP BY type`
	typeRows, err := r.pool.Query(ctx, typeQuery)
	if err != nil {
		return nil, fmt.Errorf("count workflows by type: %w", err)
	}
	defer typeRows.Close()

	for typeRows.Next() {
		var (
			wfType string
			count  int64
		)
		if err := typeRows.Scan(&wfType, &count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		stats.ByType[wfType] = count
	}
	if err := typeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate type counts: %w", err)
	}

	aggQuery := `
		SELECT
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at))) FILTER (WHERE completed_at IS NOT NULL), 0),
			count(*) FILTER (WHERE compensation_started_at IS NOT NULL)
		FROM workflows`

	if err := r.pool.QueryRow(ctx, aggQuery).Scan(&stats.MeanDurationSecs, &stats.CompensationCount); err != nil {
		return nil, fmt.Errorf("aggregate workflow durations: %w", err)
	}

	// Success rate over finished workflows only; pending/running are excluded
	// so an empty or busy system does not read as failing.
	completed := stats.ByStatus[domain.StatusCompleted]
	finished := completed +
		stats.ByStatus[domain.StatusFailed] +
		stats.ByStatus[domain.StatusRolledBack] +
		stats.ByStatus[domain.StatusCompensated]
	if finished > 0 {
		stats.SuccessRate = float64(completed) / float64(finished)
	}

	return stats, nil
}

// scanWorkflow executes a query expected to return a single workflow row.
func (r *WorkflowRepository) scanWorkflow(ctx context.Context, query string, args ...any) (*domain.Workflow, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	wf, err := scanWorkflowFrom(row.Scan, nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	return wf, nil
}

// scanWorkflowRow scans one row from a multi-row result. totalCount is scanned
// as a trailing column when non-nil (count(*) OVER() queries).
func scanWorkflowRow(rows pgx.Rows, totalCount *int) (*domain.Workflow, error) {
	return scanWorkflowFrom(rows.Scan, totalCount)
}

func scanWorkflowFrom(scan func(...any) error, totalCount *int) (*domain.Workflow, error) {
	var (
		wf            domain.Workflow
		initiatorID   *string
		initiatorKind *string
		input         []byte
		output        []byte
		contextJSON   []byte
		errMessage    *string
		errDetails    *string
		compError     *string
	)

	dest := []any{
		&wf.ID,
		&wf.BusinessID,
		&wf.Type,
		&wf.Status,
		&wf.TenantID,
		&initiatorID,
		&initiatorKind,
		&input,
		&output,
		&contextJSON,
		&errMessage,
		&errDetails,
		&wf.RetryCount,
		&wf.MaxRetries,
		&wf.StartedAt,
		&wf.CompletedAt,
		&wf.FailedAt,
		&wf.CompensationStartedAt,
		&wf.CompensationCompletedAt,
		&compError,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	}
	if totalCount != nil {
		dest = append(dest, totalCount)
	}

	if err := scan(dest...); err != nil {
		return nil, err
	}

	wf.Input = json.RawMessage(input)
	if len(output) > 0 && string(output) != "null" {
		wf.Output = json.RawMessage(output)
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &wf.Context); err != nil {
			return nil, fmt.Errorf("unmarshal workflow context: %w", err)
		}
	}

	if initiatorID != nil {
		wf.InitiatorID = *initiatorID
	}
	if initiatorKind != nil {
		wf.InitiatorKind = *initiatorKind
	}
	if errMessage != nil {
		wf.ErrorMessage = *errMessage
	}
	if errDetails != nil {
		wf.ErrorDetails = *errDetails
	}
	if compError != nil {
		wf.CompensationError = *compError
	}

	return &wf, nil
}

// nullableString returns nil if the string is empty, otherwise a pointer to the string.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullableJSON returns nil for empty raw JSON so the column stores SQL NULL
// instead of an empty blob.
func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// isUniqueViolation reports whether the error is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
