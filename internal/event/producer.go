package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	pkgkafka "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/kafka"
)

// Kafka topics for workflow lifecycle events.
var (
	TopicWorkflowCreated    = pkgkafka.Topic("workflow", "created")
	TopicWorkflowCompleted  = pkgkafka.Topic("workflow", "completed")
	TopicWorkflowFailed     = pkgkafka.Topic("workflow", "failed")
	TopicWorkflowRolledBack = pkgkafka.Topic("workflow", "rolled-back")
)

// Aggregate type constant.
const AggregateTypeWorkflow = "workflow"

// Source identifier for events originating from this service.
const SourceOrchestrator = "ftth-orchestrator"

// WorkflowCreatedData is the payload for a workflow.created event.
type WorkflowCreatedData struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id"`
}

// WorkflowCompletedData is the payload for a workflow.completed event.
type WorkflowCompletedData struct {
	ID           string  `json:"id"`
	BusinessID   string  `json:"business_id"`
	Type         string  `json:"type"`
	TenantID     string  `json:"tenant_id"`
	SubscriberID string  `json:"subscriber_id,omitempty"`
	AllocatedIP  string  `json:"allocated_ip,omitempty"`
	DurationSecs float64 `json:"duration_secs"`
}

// WorkflowFailedData is the payload for workflow.failed and
// workflow.rolled-back events.
type WorkflowFailedData struct {
	ID                string `json:"id"`
	BusinessID        string `json:"business_id"`
	Type              string `json:"type"`
	TenantID          string `json:"tenant_id"`
	ErrorMessage      string `json:"error_message,omitempty"`
	CompensationError string `json:"compensation_error,omitempty"`
	RetryCount        int    `json:"retry_count"`
}

// Producer publishes workflow lifecycle events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for workflow lifecycle events.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishWorkflowCreated publishes a workflow.created event.
func (p *Producer) PublishWorkflowCreated(ctx context.Context, wf *domain.Workflow) error {
	data := WorkflowCreatedData{
		ID:         wf.ID,
		BusinessID: wf.BusinessID,
		Type:       wf.Type,
		TenantID:   wf.TenantID,
	}

	event, err := pkgkafka.NewEvent(TopicWorkflowCreated, wf.ID, AggregateTypeWorkflow, SourceOrchestrator, data)
	if err != nil {
		return fmt.Errorf("create workflow.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicWorkflowCreated, event); err != nil {
		return fmt.Errorf("publish workflow.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published workflow.created event",
		slog.String("workflow_id", wf.ID),
		slog.String("type", wf.Type),
	)

	return nil
}

// PublishWorkflowCompleted publishes a workflow.completed event.
func (p *Producer) PublishWorkflowCompleted(ctx context.Context, wf *domain.Workflow) error {
	data := WorkflowCompletedData{
		ID:           wf.ID,
		BusinessID:   wf.BusinessID,
		Type:         wf.Type,
		TenantID:     wf.TenantID,
		SubscriberID: wf.Context.SubscriberID,
		AllocatedIP:  wf.Context.AllocatedIP,
		DurationSecs: wf.Duration().Seconds(),
	}

	event, err := pkgkafka.NewEvent(TopicWorkflowCompleted, wf.ID, AggregateTypeWorkflow, SourceOrchestrator, data)
	if err != nil {
		return fmt.Errorf("create workflow.completed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicWorkflowCompleted, event); err != nil {
		return fmt.Errorf("publish workflow.completed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published workflow.completed event",
		slog.String("workflow_id", wf.ID),
		slog.String("type", wf.Type),
	)

	return nil
}

// PublishWorkflowFailed publishes a workflow.failed event.
func (p *Producer) PublishWorkflowFailed(ctx context.Context, wf *domain.Workflow) error {
	return p.publishFailure(ctx, TopicWorkflowFailed, "workflow.failed", wf)
}

// PublishWorkflowRolledBack publishes a workflow.rolled-back event.
func (p *Producer) PublishWorkflowRolledBack(ctx context.Context, wf *domain.Workflow) error {
	return p.publishFailure(ctx, TopicWorkflowRolledBack, "workflow.rolled-back", wf)
}

func (p *Producer) publishFailure(ctx context.Context, topic, name string, wf *domain.Workflow) error {
	data := WorkflowFailedData{
		ID:                wf.ID,
		BusinessID:        wf.BusinessID,
		Type:              wf.Type,
		TenantID:          wf.TenantID,
		ErrorMessage:      wf.ErrorMessage,
		CompensationError: wf.CompensationError,
		RetryCount:        wf.RetryCount,
	}

	event, err := pkgkafka.NewEvent(topic, wf.ID, AggregateTypeWorkflow, SourceOrchestrator, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", name, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", name, err)
	}

	p.logger.DebugContext(ctx, "published "+name+" event",
		slog.String("workflow_id", wf.ID),
		slog.String("type", wf.Type),
		slog.String("error", wf.ErrorMessage),
	)

	return nil
}
