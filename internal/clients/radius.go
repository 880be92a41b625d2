package clients

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// RadiusClient talks to the RADIUS AAA provisioning API.
type RadiusClient interface {
	CreateSubscriber(ctx context.Context, params CreateRadiusSubscriberParams) (*RadiusSubscriber, error)
	DeleteSubscriber(ctx context.Context, radiusID string) error
	RestoreSubscriber(ctx context.Context, radiusID string) error
	EnableAccess(ctx context.Context, radiusID string) error
	DisableAccess(ctx context.Context, radiusID string) error
}

// CreateRadiusSubscriberParams holds the fields for provisioning a RADIUS
// subscriber entry.
type CreateRadiusSubscriberParams struct {
	SubscriberID string `json:"subscriber_id"`
	PlanID       string `json:"plan_id"`
}

// RadiusSubscriber is the AAA system's record for a subscriber.
type RadiusSubscriber struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	State    string `json:"state"`
}

// HTTPRadiusClient implements RadiusClient over the AAA REST API.
type HTTPRadiusClient struct {
	http    HTTPDoer
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRadiusClient creates a RADIUS client against the given base URL.
func NewRadiusClient(doer HTTPDoer, baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPRadiusClient {
	return &HTTPRadiusClient{http: doer, baseURL: baseURL, timeout: timeout, logger: logger}
}

// CreateSubscriber provisions the subscriber's AAA entry and credentials.
func (c *HTTPRadiusClient) CreateSubscriber(ctx context.Context, params CreateRadiusSubscriberParams) (*RadiusSubscriber, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var sub RadiusSubscriber
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/subscribers", params, &sub, "radius"); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "radius subscriber created",
		slog.String("radius_id", sub.ID),
		slog.String("username", sub.Username),
	)
	return &sub, nil
}

// DeleteSubscriber removes the subscriber's AAA entry. The AAA system soft
// deletes, so the entry can be brought back with RestoreSubscriber and the
// call is safe to repeat.
func (c *HTTPRadiusClient) DeleteSubscriber(ctx context.Context, radiusID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodDelete, c.baseURL+"/api/v1/subscribers/"+radiusID, nil, nil, "radius"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "radius subscriber deleted", slog.String("radius_id", radiusID))
	return nil
}

// RestoreSubscriber undoes a soft delete, reinstating the entry with its
// previous credentials.
func (c *HTTPRadiusClient) RestoreSubscriber(ctx context.Context, radiusID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/subscribers/"+radiusID+"/restore", nil, nil, "radius"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "radius subscriber restored", slog.String("radius_id", radiusID))
	return nil
}

// EnableAccess allows the subscriber to authenticate.
func (c *HTTPRadiusClient) EnableAccess(ctx context.Context, radiusID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/subscribers/"+radiusID+"/enable", nil, nil, "radius"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "radius access enabled", slog.String("radius_id", radiusID))
	return nil
}

// DisableAccess rejects further authentication attempts by the subscriber.
func (c *HTTPRadiusClient) DisableAccess(ctx context.Context, radiusID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/subscribers/"+radiusID+"/disable", nil, nil, "radius"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "radius access disabled", slog.String("radius_id", radiusID))
	return nil
}
