package clients

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CPEClient talks to the customer-premises equipment controller.
type CPEClient interface {
	PushConfig(ctx context.Context, params PushConfigParams) (*CPEConfig, error)
	RemoveConfig(ctx context.Context, deviceID, configID string) error
	RestoreConfig(ctx context.Context, deviceID, configID string) error
}

// PushConfigParams holds the fields for configuring a subscriber's CPE.
type PushConfigParams struct {
	ONUSerial      string `json:"onu_serial"`
	RadiusUsername string `json:"radius_username"`
	IPAddress      string `json:"ip_address"`
}

// CPEConfig is the controller's record of a pushed device configuration.
type CPEConfig struct {
	DeviceID string `json:"device_id"`
	ConfigID string `json:"config_id"`
}

// HTTPCPEClient implements CPEClient over the controller REST API.
type HTTPCPEClient struct {
	http    HTTPDoer
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCPEClient creates a CPE controller client against the given base URL.
func NewCPEClient(doer HTTPDoer, baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPCPEClient {
	return &HTTPCPEClient{http: doer, baseURL: baseURL, timeout: timeout, logger: logger}
}

// PushConfig renders and pushes the subscriber's service configuration to
// the device identified by its ONU serial.
func (c *HTTPCPEClient) PushConfig(ctx context.Context, params PushConfigParams) (*CPEConfig, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var cfg CPEConfig
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/configs", params, &cfg, "cpe-controller"); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "cpe config pushed",
		slog.String("device_id", cfg.DeviceID),
		slog.String("config_id", cfg.ConfigID),
		slog.String("onu_serial", params.ONUSerial),
	)
	return &cfg, nil
}

// RemoveConfig factory-resets the service configuration on the device. The
// controller versions pushed configurations, so a removed one can be brought
// back with RestoreConfig and the call is safe to repeat.
func (c *HTTPCPEClient) RemoveConfig(ctx context.Context, deviceID, configID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodDelete, c.baseURL+"/api/v1/devices/"+deviceID+"/configs/"+configID, nil, nil, "cpe-controller"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "cpe config removed",
		slog.String("device_id", deviceID),
		slog.String("config_id", configID),
	)
	return nil
}

// RestoreConfig re-pushes the last removed configuration version to the device.
func (c *HTTPCPEClient) RestoreConfig(ctx context.Context, deviceID, configID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/devices/"+deviceID+"/configs/"+configID+"/restore", nil, nil, "cpe-controller"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "cpe config restored",
		slog.String("device_id", deviceID),
		slog.String("config_id", configID),
	)
	return nil
}
