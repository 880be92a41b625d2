package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/clients"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/saga"
)

// Provision builds the six-step subscriber provisioning workflow: billing
// account, service address, RADIUS entry, IP lease, OLT port, CPE config.
// Later steps read the identifiers earlier steps merged into the context.
func Provision(c Clients) saga.WorkflowDefinition {
	return saga.WorkflowDefinition{
		Type:       domain.TypeProvision,
		MaxRetries: workflowMaxRetries,
		Steps: []saga.StepDefinition{
			{
				Name:         "create-billing-account",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "billing",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeProvision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					account, err := c.Billing.CreateAccount(ctx, clients.CreateBillingAccountParams{
						SubscriberID: req.SubscriberID,
						PlanID:       req.PlanID,
						FullName:     req.FullName,
						Email:        req.Email,
					})
					if err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							SubscriberID:     req.SubscriberID,
							PlanID:           req.PlanID,
							BillingAccountID: account.ID,
							BillingState:     account.State,
						},
						CompensationData: domain.WorkflowContext{BillingAccountID: account.ID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.Billing.CloseAccount(ctx, data.BillingAccountID)
				},
			},
			{
				Name:         "register-service-address",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "address-registry",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeProvision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					addr, err := c.Address.RegisterServiceAddress(ctx, clients.RegisterServiceAddressParams{
						SubscriberID: req.SubscriberID,
						AddressLine:  req.AddressLine,
						City:         req.City,
						PostalCode:   req.PostalCode,
					})
					if err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output:           domain.WorkflowContext{ServiceAddressID: addr.ID},
						CompensationData: domain.WorkflowContext{ServiceAddressID: addr.ID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.Address.DeregisterServiceAddress(ctx, data.ServiceAddressID)
				},
			},
			{
				Name:         "create-radius-subscriber",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "radius",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeProvision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					sub, err := c.Radius.CreateSubscriber(ctx, clients.CreateRadiusSubscriberParams{
						SubscriberID: req.SubscriberID,
						PlanID:       req.PlanID,
					})
					if err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							RadiusSubscriberID: sub.ID,
							RadiusUsername:     sub.Username,
							RadiusState:        sub.State,
						},
						CompensationData: domain.WorkflowContext{RadiusSubscriberID: sub.ID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.Radius.DeleteSubscriber(ctx, data.RadiusSubscriberID)
				},
			},
			{
				Name:         "allocate-ip",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "ipam",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeProvision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					alloc, err := c.IPAM.AllocateIP(ctx, clients.AllocateIPParams{
						PoolID:       req.IPPoolID,
						SubscriberID: req.SubscriberID,
					})
					if err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							IPAllocationID: alloc.ID,
							AllocatedIP:    alloc.Address,
						},
						CompensationData: domain.WorkflowContext{IPAllocationID: alloc.ID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.IPAM.ReleaseIP(ctx, data.IPAllocationID)
				},
			},
			{
				Name:         "activate-olt-port",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "olt-controller",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, _ *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeProvision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					port, err := c.OLT.ActivatePort(ctx, clients.ActivatePortParams{
						OLTID:     req.OLTID,
						PONPort:   req.PONPort,
						ONUSerial: req.ONUSerial,
					})
					if err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							OLTPortID: port.ID,
							ONUSerial: req.ONUSerial,
							PortState: port.State,
						},
						CompensationData: domain.WorkflowContext{OLTPortID: port.ID},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.OLT.DeactivatePort(ctx, data.OLTPortID)
				},
			},
			{
				Name:         "push-cpe-config",
				Kind:         domain.StepKindExternalAPI,
				TargetSystem: "cpe-controller",
				MaxRetries:   stepMaxRetries,
				Backoff:      saga.DefaultBackoff(),
				Action: func(ctx context.Context, wctx *domain.WorkflowContext, input json.RawMessage) (saga.StepResult, error) {
					req, err := decodeProvision(input)
					if err != nil {
						return saga.StepResult{}, err
					}
					cfg, err := c.CPE.PushConfig(ctx, clients.PushConfigParams{
						ONUSerial:      req.ONUSerial,
						RadiusUsername: wctx.RadiusUsername,
						IPAddress:      wctx.AllocatedIP,
					})
					if err != nil {
						return saga.StepResult{}, err
					}
					return saga.StepResult{
						Output: domain.WorkflowContext{
							CPEDeviceID: cfg.DeviceID,
							CPEConfigID: cfg.ConfigID,
						},
						CompensationData: domain.WorkflowContext{
							CPEDeviceID: cfg.DeviceID,
							CPEConfigID: cfg.ConfigID,
						},
					}, nil
				},
				Compensate: func(ctx context.Context, data domain.WorkflowContext, _ *domain.WorkflowContext) error {
					return c.CPE.RemoveConfig(ctx, data.CPEDeviceID, data.CPEConfigID)
				},
			},
		},
	}
}

func decodeProvision(input json.RawMessage) (*domain.ProvisionRequest, error) {
	var req domain.ProvisionRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("decode provision input: %w", err)
	}
	return &req, nil
}
