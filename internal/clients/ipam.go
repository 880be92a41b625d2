package clients

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// IPAMClient talks to the IP address management system.
type IPAMClient interface {
	AllocateIP(ctx context.Context, params AllocateIPParams) (*IPAllocation, error)
	ReleaseIP(ctx context.Context, allocationID string) error
	RestoreAllocation(ctx context.Context, allocationID string) error
}

// AllocateIPParams holds the fields for leasing an address from a pool.
type AllocateIPParams struct {
	PoolID       string `json:"pool_id"`
	SubscriberID string `json:"subscriber_id"`
}

// IPAllocation is one leased address.
type IPAllocation struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// HTTPIPAMClient implements IPAMClient over the IPAM REST API.
type HTTPIPAMClient struct {
	http    HTTPDoer
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewIPAMClient creates an IPAM client against the given base URL.
func NewIPAMClient(doer HTTPDoer, baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPIPAMClient {
	return &HTTPIPAMClient{http: doer, baseURL: baseURL, timeout: timeout, logger: logger}
}

// AllocateIP leases an address from the given pool for the subscriber.
func (c *HTTPIPAMClient) AllocateIP(ctx context.Context, params AllocateIPParams) (*IPAllocation, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var alloc IPAllocation
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/allocations", params, &alloc, "ipam"); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "ip address allocated",
		slog.String("allocation_id", alloc.ID),
		slog.String("address", alloc.Address),
		slog.String("pool_id", params.PoolID),
	)
	return &alloc, nil
}

// ReleaseIP returns a leased address to its pool. The IPAM holds released
// allocations in quarantine for a grace period, so the lease can be brought
// back with RestoreAllocation and the call is safe to repeat.
func (c *HTTPIPAMClient) ReleaseIP(ctx context.Context, allocationID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodDelete, c.baseURL+"/api/v1/allocations/"+allocationID, nil, nil, "ipam"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "ip address released", slog.String("allocation_id", allocationID))
	return nil
}

// RestoreAllocation re-claims a released lease from quarantine, keeping the
// same address.
func (c *HTTPIPAMClient) RestoreAllocation(ctx context.Context, allocationID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/allocations/"+allocationID+"/restore", nil, nil, "ipam"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "ip allocation restored", slog.String("allocation_id", allocationID))
	return nil
}
