package clients

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// OLTClient talks to the optical line terminal controller.
type OLTClient interface {
	ActivatePort(ctx context.Context, params ActivatePortParams) (*OLTPort, error)
	DeactivatePort(ctx context.Context, portID string) error
	RestorePort(ctx context.Context, portID string) error
	EnablePort(ctx context.Context, portID string) error
	DisablePort(ctx context.Context, portID string) error
}

// ActivatePortParams holds the fields for bringing up an ONU on a PON port.
type ActivatePortParams struct {
	OLTID     string `json:"olt_id"`
	PONPort   string `json:"pon_port"`
	ONUSerial string `json:"onu_serial"`
}

// OLTPort is the controller's record of a provisioned subscriber port.
type OLTPort struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// HTTPOLTClient implements OLTClient over the controller REST API.
type HTTPOLTClient struct {
	http    HTTPDoer
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOLTClient creates an OLT controller client against the given base URL.
func NewOLTClient(doer HTTPDoer, baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPOLTClient {
	return &HTTPOLTClient{http: doer, baseURL: baseURL, timeout: timeout, logger: logger}
}

// ActivatePort registers the ONU on its PON port and brings the port up.
func (c *HTTPOLTClient) ActivatePort(ctx context.Context, params ActivatePortParams) (*OLTPort, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var port OLTPort
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/ports", params, &port, "olt-controller"); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "olt port activated",
		slog.String("port_id", port.ID),
		slog.String("olt_id", params.OLTID),
		slog.String("onu_serial", params.ONUSerial),
	)
	return &port, nil
}

// DeactivatePort deregisters the ONU and tears the port down. The controller
// keeps the port record, so it can be brought back with RestorePort and the
// call is safe to repeat.
func (c *HTTPOLTClient) DeactivatePort(ctx context.Context, portID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodDelete, c.baseURL+"/api/v1/ports/"+portID, nil, nil, "olt-controller"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "olt port deactivated", slog.String("port_id", portID))
	return nil
}

// RestorePort re-provisions a deactivated port from its retained record.
func (c *HTTPOLTClient) RestorePort(ctx context.Context, portID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/ports/"+portID+"/restore", nil, nil, "olt-controller"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "olt port restored", slog.String("port_id", portID))
	return nil
}

// EnablePort opens the port for traffic without re-provisioning the ONU.
func (c *HTTPOLTClient) EnablePort(ctx context.Context, portID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/ports/"+portID+"/enable", nil, nil, "olt-controller"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "olt port enabled", slog.String("port_id", portID))
	return nil
}

// DisablePort blocks traffic on the port while keeping the ONU provisioned.
func (c *HTTPOLTClient) DisablePort(ctx context.Context, portID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/ports/"+portID+"/disable", nil, nil, "olt-controller"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "olt port disabled", slog.String("port_id", portID))
	return nil
}
