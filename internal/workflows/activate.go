package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/saga"
)

// ActivateService builds the three-step workflow that re-enables a suspended
// subscriber: RADIUS access, OLT port, then billing.
func ActivateService(c Clients) saga.WorkflowDefinition {
	return saga.WorkflowDefinition{
		Type:       domain.TypeActivateService,
		MaxRetries: workflowMaxRetries,
		Steps: []saga.StepDefinition{
			{
				Name:         "enable-radius-access",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "radius",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeActivate(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.Radius.EnableAccess(ctx, req.RadiusSubscriberID); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							SubscriberID:       req.SubscriberID,
							RadiusSubscriberID: req.RadiusSubscriberID,
							RadiusState:        "enabled",
						},
						CompensationData: domain.WorkflowContext{RadiusSubscriberID: req.RadiusSubscriberID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.Radius.DisableAccess(ctx, data.RadiusSubscriberID)
				},
			},
			{
				Name:         "enable-olt-port",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "olt-controller",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeActivate(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.OLT.EnablePort(ctx, req.OLTPortID); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							OLTPortID: req.OLTPortID,
							PortState: "enabled",
						},
						CompensationData: domain.WorkflowContext{OLTPortID: req.OLTPortID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.OLT.DisablePort(ctx, data.OLTPortID)
				},
			},
			{
				Name:         "resume-billing",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "billing",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeActivate(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.Billing.ResumeBilling(ctx, req.BillingAccountID); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							BillingAccountID: req.BillingAccountID,
							BillingState:     "active",
						},
						CompensationData: domain.WorkflowContext{BillingAccountID: req.BillingAccountID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.Billing.SuspendBilling(ctx, data.BillingAccountID, "service activation rolled back")
				},
			},
		},
	}
}

func decodeActivate(input json.RawMessage) (*domain.ActivateServiceRequest, error) {
	var req domain.ActivateServiceRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("decode activate-service input: %w", err)
	}
	return &req, nil
}
