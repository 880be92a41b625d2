package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/saga"
)

// Deprovision builds the five-step teardown workflow, undoing provisioning
// in roughly reverse order: CPE config, OLT port, IP lease, RADIUS entry,
// billing account. Every downstream removal is a soft delete, so each
// compensator restores the record it removed.
func Deprovision(c Clients) saga.WorkflowDefinition {
	return saga.WorkflowDefinition{
		Type:       domain.TypeDeprovision,
		MaxRetries: workflowMaxRetries,
		Steps: []saga.StepDefinition{
			{
				Name:         "remove-cpe-config",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "cpe-controller",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeDeprovision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.CPE.RemoveConfig(ctx, req.CPEDeviceID, req.CPEConfigID); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							SubscriberID: req.SubscriberID,
							CPEDeviceID:  req.CPEDeviceID,
							CPEConfigID:  req.CPEConfigID,
						},
						CompensationData: domain.WorkflowContext{
							CPEDeviceID: req.CPEDeviceID,
							CPEConfigID: req.CPEConfigID,
						},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.CPE.RestoreConfig(ctx, data.CPEDeviceID, data.CPEConfigID)
				},
			},
			{
				Name:         "deactivate-olt-port",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "olt-controller",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeDeprovision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.OLT.DeactivatePort(ctx, req.OLTPortID); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							OLTPortID: req.OLTPortID,
							PortState: "deactivated",
						},
						CompensationData: domain.WorkflowContext{OLTPortID: req.OLTPortID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.OLT.RestorePort(ctx, data.OLTPortID)
				},
			},
			{
				Name:         "release-ip",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "ipam",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeDeprovision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.IPAM.ReleaseIP(ctx, req.IPAllocationID); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output:           domain.WorkflowContext{IPAllocationID: req.IPAllocationID},
						CompensationData: domain.WorkflowContext{IPAllocationID: req.IPAllocationID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.IPAM.RestoreAllocation(ctx, data.IPAllocationID)
				},
			},
			{
				Name:         "delete-radius-subscriber",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "radius",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeDeprovision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.Radius.DeleteSubscriber(ctx, req.RadiusSubscriberID); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output:           domain.WorkflowContext{RadiusSubscriberID: req.RadiusSubscriberID},
						CompensationData: domain.WorkflowContext{RadiusSubscriberID: req.RadiusSubscriberID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.Radius.RestoreSubscriber(ctx, data.RadiusSubscriberID)
				},
			},
			{
				Name:         "close-billing-account",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "billing",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeDeprovision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					if err := c.Billing.CloseAccount(ctx, req.BillingAccountID); err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							BillingAccountID: req.BillingAccountID,
							BillingState:     "closed",
						},
						CompensationData: domain.WorkflowContext{BillingAccountID: req.BillingAccountID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.Billing.ReopenAccount(ctx, data.BillingAccountID)
				},
			},
		},
	}
}

func decodeDeprovision(input json.RawMessage) (*domain.DeprovisionRequest, error) {
	var req domain.DeprovisionRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("decode deprovision input: %w", err)
	}
	return &req, nil
}
