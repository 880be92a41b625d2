package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/errors"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/httpclient"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback is the circuit breaker fallback shared by all
// downstream clients. When a circuit is open it returns a structured error
// with a retry hint instead of letting the raw ErrCircuitOpen propagate.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("downstream system is temporarily unavailable, please retry after 30 seconds")
}

// Timeouts holds the per-system call timeouts for workflow steps.
// A zero value means no per-call timeout (inherits the parent context).
type Timeouts struct {
	Billing time.Duration
	Address time.Duration
	Radius  time.Duration
	IPAM    time.Duration
	OLT     time.Duration
	CPE     time.Duration
}

// withTimeout derives a bounded context when a timeout is configured.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}

// doJSON executes one JSON round trip against a downstream system: marshal
// the request body (nil means no body), issue the call, map non-2xx responses
// through ParseResponseError, and decode into out (nil means discard).
func doJSON(ctx context.Context, client HTTPDoer, method, url string, in, out any, system string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", system, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", system, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call %s: %w", system, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
	default:
		return httpclient.ParseResponseError(resp, system)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", system, err)
		}
	}
	return nil
}
