package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/saga"
)

// SuspendService builds the three-step workflow that suspends an active
// subscriber, typically for non-payment: billing first so charging stops
// before access does, then RADIUS, then the OLT port.
func SuspendService(c Clients) saga.WorkflowDefinition {
	return saga.WorkflowDefinition{
		Type:       domain.TypeSuspendService,
		MaxRetries: workflowMaxRetries,
		Steps: []saga.StepDefinition{
			{
				Name:         "suspend-billing",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "billing",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeSuspend(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.Billing.SuspendBilling(ctx, req.BillingAccountID, req.Reason); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							SubscriberID:     req.SubscriberID,
							BillingAccountID: req.BillingAccountID,
							BillingState:     "suspended",
						},
						CompensationData: domain.WorkflowContext{BillingAccountID: req.BillingAccountID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.Billing.ResumeBilling(ctx, data.BillingAccountID)
				},
			},
			{
				Name:         "disable-radius-access",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "radius",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeSuspend(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.Radius.DisableAccess(ctx, req.RadiusSubscriberID); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							RadiusSubscriberID: req.RadiusSubscriberID,
							RadiusState:        "disabled",
						},
						CompensationData: domain.WorkflowContext{RadiusSubscriberID: req.RadiusSubscriberID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.Radius.EnableAccess(ctx, data.RadiusSubscriberID)
				},
			},
			{
				Name:         "disable-olt-port",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "olt-controller",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeSuspend(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.OLT.DisablePort(ctx, req.OLTPortID); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							OLTPortID: req.OLTPortID,
							PortState: "disabled",
						},
						CompensationData: domain.WorkflowContext{OLTPortID: req.OLTPortID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.OLT.EnablePort(ctx, data.OLTPortID)
				},
			},
		},
	}
}

func decodeSuspend(input json.RawMessage) (*domain.SuspendServiceRequest, error) {
	var req domain.SuspendServiceRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("decode suspend-service input: %w", err)
	}
	return &req, nil
}
