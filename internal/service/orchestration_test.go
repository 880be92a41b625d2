package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/event"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/repository"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/saga"
	apperrors "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/errors"
	pkgkafka "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/kafka"
)

// --- Mocks ---

type mockWorkflowRepository struct{ mock.Mock }

func (m *mockWorkflowRepository) Create(ctx context.Context, wf *domain.Workflow) error {
	return m.Called(ctx, wf).Error(0)
}

func (m *mockWorkflowRepository) Update(ctx context.Context, wf *domain.Workflow) error {
	return m.Called(ctx, wf).Error(0)
}

func (m *mockWorkflowRepository) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	args := m.Called(ctx, id)
	if wf := args.Get(0); wf != nil {
		return wf.(*domain.Workflow), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWorkflowRepository) GetByBusinessID(ctx context.Context, businessID string) (*domain.Workflow, error) {
	args := m.Called(ctx, businessID)
	if wf := args.Get(0); wf != nil {
		return wf.(*domain.Workflow), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWorkflowRepository) List(ctx context.Context, filter repository.WorkflowFilter) ([]domain.Workflow, int, error) {
	args := m.Called(ctx, filter)
	if wfs := args.Get(0); wfs != nil {
		return wfs.([]domain.Workflow), args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

func (m *mockWorkflowRepository) ListByStatuses(ctx context.Context, statuses []string) ([]domain.Workflow, error) {
	args := m.Called(ctx, statuses)
	if wfs := args.Get(0); wfs != nil {
		return wfs.([]domain.Workflow), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWorkflowRepository) Statistics(ctx context.Context) (*domain.WorkflowStatistics, error) {
	args := m.Called(ctx)
	if stats := args.Get(0); stats != nil {
		return stats.(*domain.WorkflowStatistics), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockStepRepository struct{ mock.Mock }

func (m *mockStepRepository) Create(ctx context.Context, step *domain.WorkflowStep) error {
	return m.Called(ctx, step).Error(0)
}

func (m *mockStepRepository) Update(ctx context.Context, step *domain.WorkflowStep) error {
	return m.Called(ctx, step).Error(0)
}

func (m *mockStepRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.WorkflowStep, error) {
	args := m.Called(ctx, key)
	if step := args.Get(0); step != nil {
		return step.(*domain.WorkflowStep), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStepRepository) ListByWorkflowID(ctx context.Context, workflowID string) ([]domain.WorkflowStep, error) {
	args := m.Called(ctx, workflowID)
	if steps := args.Get(0); steps != nil {
		return steps.([]domain.WorkflowStep), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockEngine struct{ mock.Mock }

func (m *mockEngine) Execute(ctx context.Context, wf *domain.Workflow, def saga.WorkflowDefinition) (*domain.Workflow, error) {
	args := m.Called(ctx, wf, def)
	if out := args.Get(0); out != nil {
		return out.(*domain.Workflow), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEngine) Compensate(ctx context.Context, wf *domain.Workflow, def saga.WorkflowDefinition) (*domain.Workflow, error) {
	args := m.Called(ctx, wf, def)
	if out := args.Get(0); out != nil {
		return out.(*domain.Workflow), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEngine) Retry(ctx context.Context, wf *domain.Workflow, def saga.WorkflowDefinition) (*domain.Workflow, error) {
	args := m.Called(ctx, wf, def)
	if out := args.Get(0); out != nil {
		return out.(*domain.Workflow), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEngine) Resume(ctx context.Context, wf *domain.Workflow, def saga.WorkflowDefinition) (*domain.Workflow, error) {
	args := m.Called(ctx, wf, def)
	if out := args.Get(0); out != nil {
		return out.(*domain.Workflow), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockStatsCache struct{ mock.Mock }

func (m *mockStatsCache) Get(ctx context.Context) (*domain.WorkflowStatistics, error) {
	args := m.Called(ctx)
	if stats := args.Get(0); stats != nil {
		return stats.(*domain.WorkflowStatistics), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStatsCache) Set(ctx context.Context, stats *domain.WorkflowStatistics) error {
	return m.Called(ctx, stats).Error(0)
}

func (m *mockStatsCache) Invalidate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEventProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

func testRegistry(t *testing.T) *saga.Registry {
	t.Helper()
	r := saga.NewRegistry()
	for _, wfType := range domain.ValidTypes() {
		require.NoError(t, r.Register(saga.WorkflowDefinition{
			Type:       wfType,
			MaxRetries: 3,
			Steps: []saga.StepDefinition{
				{
					Name:         "noop",
					Kind:         domain.StepKindExternalAPI,
					TargetSystem: "test-system",
					Action: func(context.Context, *domain.WorkflowContext, json.RawMessage) (saga.StepResult, error) {
						return saga.StepResult{}, nil
					},
					Compensate: func(context.Context, domain.WorkflowContext, *domain.WorkflowContext) error {
						return nil
					},
				},
			},
		}))
	}
	return r
}

type testMocks struct {
	workflows *mockWorkflowRepository
	steps     *mockStepRepository
	engine    *mockEngine
	stats     *mockStatsCache
}

func newTestService(t *testing.T) (*OrchestrationService, *testMocks) {
	t.Helper()
	m := &testMocks{
		workflows: new(mockWorkflowRepository),
		steps:     new(mockStepRepository),
		engine:    new(mockEngine),
		stats:     new(mockStatsCache),
	}
	svc := NewOrchestrationService(
		m.workflows, m.steps, testRegistry(t), m.engine, newTestEventProducer(), m.stats, newTestLogger(),
	)
	return svc, m
}

// --- CreateAndRun ---

func TestCreateAndRun_Success(t *testing.T) {
	svc, m := newTestService(t)

	m.workflows.On("Create", mock.Anything, mock.MatchedBy(func(wf *domain.Workflow) bool {
		return wf.Type == domain.TypeProvision &&
			wf.Status == domain.StatusPending &&
			wf.TenantID == "tenant-1" &&
			strings.HasPrefix(wf.BusinessID, "PROV-") &&
			wf.MaxRetries == 3 &&
			len(wf.Input) > 0
	})).Return(nil)

	m.engine.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.Workflow{ID: "wf-1", BusinessID: "PROV-AAA", Type: domain.TypeProvision, Status: domain.StatusCompleted}, nil)
	m.stats.On("Invalidate", mock.Anything).Return(nil)

	wf, err := svc.CreateAndRun(context.Background(), CreateWorkflowInput{
		Type:          domain.TypeProvision,
		TenantID:      "tenant-1",
		InitiatorID:   "ops-user-9",
		InitiatorKind: "operator",
		Request:       domain.ProvisionRequest{SubscriberID: "sub-1", PlanID: "plan-100mbps"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, wf.Status)
	m.workflows.AssertExpectations(t)
	m.engine.AssertExpectations(t)
	m.stats.AssertExpectations(t)
}

func TestCreateAndRun_UnknownType(t *testing.T) {
	svc, m := newTestService(t)

	_, err := svc.CreateAndRun(context.Background(), CreateWorkflowInput{
		Type:     "decommission-pop",
		TenantID: "tenant-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	m.workflows.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateAndRun_MissingTenant(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateAndRun(context.Background(), CreateWorkflowInput{Type: domain.TypeProvision})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestCreateAndRun_CreateFails(t *testing.T) {
	svc, m := newTestService(t)

	m.workflows.On("Create", mock.Anything, mock.Anything).
		Return(apperrors.AlreadyExists("workflow", "business_id", "PROV-X"))

	_, err := svc.CreateAndRun(context.Background(), CreateWorkflowInput{
		Type:     domain.TypeProvision,
		TenantID: "tenant-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	m.engine.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

// --- Get / List ---

func TestGet_PopulatesSteps(t *testing.T) {
	svc, m := newTestService(t)

	wf := &domain.Workflow{ID: "wf-1", BusinessID: "PROV-AAA", Status: domain.StatusCompleted}
	steps := []domain.WorkflowStep{
		{ID: "st-1", WorkflowID: "wf-1", StepOrder: 0, Name: "create-billing-account"},
		{ID: "st-2", WorkflowID: "wf-1", StepOrder: 1, Name: "register-service-address"},
	}

	m.workflows.On("GetByBusinessID", mock.Anything, "PROV-AAA").Return(wf, nil)
	m.steps.On("ListByWorkflowID", mock.Anything, "wf-1").Return(steps, nil)

	got, err := svc.Get(context.Background(), "PROV-AAA")
	require.NoError(t, err)
	assert.Len(t, got.Steps, 2)
	assert.Equal(t, "create-billing-account", got.Steps[0].Name)
}

func TestGet_NotFound(t *testing.T) {
	svc, m := newTestService(t)

	m.workflows.On("GetByBusinessID", mock.Anything, "PROV-ZZZ").
		Return(nil, apperrors.NotFound("workflow", "PROV-ZZZ"))

	_, err := svc.Get(context.Background(), "PROV-ZZZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestList_NormalizesPagination(t *testing.T) {
	svc, m := newTestService(t)

	m.workflows.On("List", mock.Anything, mock.MatchedBy(func(f repository.WorkflowFilter) bool {
		return f.Page == 1 && f.PerPage == 20
	})).Return([]domain.Workflow{{ID: "wf-1"}}, 1, nil)

	workflows, total, err := svc.List(context.Background(), repository.WorkflowFilter{Page: 0, PerPage: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, workflows, 1)
}

func TestList_RejectsInvalidFilters(t *testing.T) {
	svc, _ := newTestService(t)

	badType := "decommission-pop"
	_, _, err := svc.List(context.Background(), repository.WorkflowFilter{Type: &badType})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	badStatus := "paused"
	_, _, err = svc.List(context.Background(), repository.WorkflowFilter{Status: &badStatus})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

// --- Retry / Cancel ---

func TestRetry_DelegatesToEngine(t *testing.T) {
	svc, m := newTestService(t)

	failed := &domain.Workflow{
		ID: "wf-1", BusinessID: "PROV-AAA", Type: domain.TypeProvision,
		Status: domain.StatusFailed, MaxRetries: 3,
	}
	m.workflows.On("GetByBusinessID", mock.Anything, "PROV-AAA").Return(failed, nil)
	m.engine.On("Retry", mock.Anything, failed, mock.Anything).
		Return(&domain.Workflow{ID: "wf-1", Status: domain.StatusCompleted}, nil)
	m.stats.On("Invalidate", mock.Anything).Return(nil)

	wf, err := svc.Retry(context.Background(), "PROV-AAA")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, wf.Status)
	m.engine.AssertExpectations(t)
}

func TestRetry_EngineConflictPropagates(t *testing.T) {
	svc, m := newTestService(t)

	wf := &domain.Workflow{ID: "wf-1", BusinessID: "PROV-AAA", Type: domain.TypeProvision, Status: domain.StatusCompleted}
	m.workflows.On("GetByBusinessID", mock.Anything, "PROV-AAA").Return(wf, nil)
	m.engine.On("Retry", mock.Anything, wf, mock.Anything).
		Return(nil, apperrors.Conflict("only failed workflows can be retried"))

	_, err := svc.Retry(context.Background(), "PROV-AAA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestCancel_RunningWorkflow(t *testing.T) {
	svc, m := newTestService(t)

	running := &domain.Workflow{
		ID: "wf-1", BusinessID: "PROV-AAA", Type: domain.TypeProvision,
		Status: domain.StatusRunning,
	}
	m.workflows.On("GetByBusinessID", mock.Anything, "PROV-AAA").Return(running, nil)
	m.engine.On("Compensate", mock.Anything, mock.MatchedBy(func(wf *domain.Workflow) bool {
		return wf.ErrorMessage == "cancelled by operator"
	}), mock.Anything).Return(&domain.Workflow{ID: "wf-1", Status: domain.StatusRolledBack}, nil)
	m.stats.On("Invalidate", mock.Anything).Return(nil)

	wf, err := svc.Cancel(context.Background(), "PROV-AAA")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRolledBack, wf.Status)
}

func TestCancel_TerminalWorkflowIsConflict(t *testing.T) {
	svc, m := newTestService(t)

	m.workflows.On("GetByBusinessID", mock.Anything, "PROV-AAA").
		Return(&domain.Workflow{ID: "wf-1", BusinessID: "PROV-AAA", Status: domain.StatusCompleted}, nil)

	_, err := svc.Cancel(context.Background(), "PROV-AAA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	m.engine.AssertNotCalled(t, "Compensate", mock.Anything, mock.Anything, mock.Anything)
}

// --- Statistics ---

func TestStatistics_CacheHit(t *testing.T) {
	svc, m := newTestService(t)

	cached := &domain.WorkflowStatistics{Total: 10, SuccessRate: 0.9}
	m.stats.On("Get", mock.Anything).Return(cached, nil)

	got, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	m.workflows.AssertNotCalled(t, "Statistics", mock.Anything)
}

func TestStatistics_CacheMissComputesAndStores(t *testing.T) {
	svc, m := newTestService(t)

	computed := &domain.WorkflowStatistics{Total: 42, SuccessRate: 0.85}
	m.stats.On("Get", mock.Anything).Return(nil, apperrors.NotFound("workflow statistics", "cache"))
	m.workflows.On("Statistics", mock.Anything).Return(computed, nil)
	m.stats.On("Set", mock.Anything, computed).Return(nil)

	got, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, computed, got)
	m.stats.AssertExpectations(t)
}

// --- ResumeIncomplete ---

func TestResumeIncomplete_ResumesAllFound(t *testing.T) {
	svc, m := newTestService(t)

	incomplete := []domain.Workflow{
		{ID: "wf-1", BusinessID: "PROV-AAA", Type: domain.TypeProvision, Status: domain.StatusRunning},
		{ID: "wf-2", BusinessID: "SUSP-BBB", Type: domain.TypeSuspendService, Status: domain.StatusRollingBack},
	}
	m.workflows.On("ListByStatuses", mock.Anything, []string{domain.StatusRunning, domain.StatusRollingBack}).
		Return(incomplete, nil)
	m.engine.On("Resume", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.Workflow{Status: domain.StatusCompleted}, nil).Twice()
	m.stats.On("Invalidate", mock.Anything).Return(nil)

	resumed, err := svc.ResumeIncomplete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resumed)
	m.engine.AssertExpectations(t)
}

func TestResumeIncomplete_SkipsPoisonedWorkflow(t *testing.T) {
	svc, m := newTestService(t)

	incomplete := []domain.Workflow{
		{ID: "wf-1", BusinessID: "PROV-AAA", Type: domain.TypeProvision, Status: domain.StatusRunning},
		{ID: "wf-2", BusinessID: "PROV-BBB", Type: domain.TypeProvision, Status: domain.StatusRunning},
	}
	m.workflows.On("ListByStatuses", mock.Anything, mock.Anything).Return(incomplete, nil)
	m.engine.On("Resume", mock.Anything, mock.MatchedBy(func(wf *domain.Workflow) bool { return wf.ID == "wf-1" }), mock.Anything).
		Return(nil, errors.New("persist workflow start: connection refused"))
	m.engine.On("Resume", mock.Anything, mock.MatchedBy(func(wf *domain.Workflow) bool { return wf.ID == "wf-2" }), mock.Anything).
		Return(&domain.Workflow{ID: "wf-2", Status: domain.StatusCompleted}, nil)
	m.stats.On("Invalidate", mock.Anything).Return(nil)

	resumed, err := svc.ResumeIncomplete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
}
