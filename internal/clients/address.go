package clients

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// AddressClient talks to the service-address registry.
type AddressClient interface {
	RegisterServiceAddress(ctx context.Context, params RegisterServiceAddressParams) (*ServiceAddress, error)
	DeregisterServiceAddress(ctx context.Context, addressID string) error
}

// RegisterServiceAddressParams holds the fields for registering the premises
// a subscriber is served at.
type RegisterServiceAddressParams struct {
	SubscriberID string `json:"subscriber_id"`
	AddressLine  string `json:"address_line"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
}

// ServiceAddress is the registry's record of a serviceable premises.
type ServiceAddress struct {
	ID string `json:"id"`
}

// HTTPAddressClient implements AddressClient over the registry REST API.
type HTTPAddressClient struct {
	http    HTTPDoer
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewAddressClient creates an address registry client against the given base URL.
func NewAddressClient(doer HTTPDoer, baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPAddressClient {
	return &HTTPAddressClient{http: doer, baseURL: baseURL, timeout: timeout, logger: logger}
}

// RegisterServiceAddress records the subscriber's premises in the registry.
func (c *HTTPAddressClient) RegisterServiceAddress(ctx context.Context, params RegisterServiceAddressParams) (*ServiceAddress, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var addr ServiceAddress
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/service-addresses", params, &addr, "address-registry"); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "service address registered",
		slog.String("address_id", addr.ID),
		slog.String("subscriber_id", params.SubscriberID),
	)
	return &addr, nil
}

// DeregisterServiceAddress removes a premises record from the registry.
func (c *HTTPAddressClient) DeregisterServiceAddress(ctx context.Context, addressID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodDelete, c.baseURL+"/api/v1/service-addresses/"+addressID, nil, nil, "address-registry"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "service address deregistered", slog.String("address_id", addressID))
	return nil
}
