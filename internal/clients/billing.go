package clients

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// BillingClient talks to the billing system's account API.
type BillingClient interface {
	CreateAccount(ctx context.Context, params CreateBillingAccountParams) (*BillingAccount, error)
	CloseAccount(ctx context.Context, accountID string) error
	ReopenAccount(ctx context.Context, accountID string) error
	SuspendBilling(ctx context.Context, accountID, reason string) error
	ResumeBilling(ctx context.Context, accountID string) error
}

// CreateBillingAccountParams holds the fields for opening a billing account.
type CreateBillingAccountParams struct {
	SubscriberID string `json:"subscriber_id"`
	PlanID       string `json:"plan_id"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
}

// BillingAccount is the billing system's view of a subscriber account.
type BillingAccount struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// HTTPBillingClient implements BillingClient over the billing REST API.
type HTTPBillingClient struct {
	http    HTTPDoer
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewBillingClient creates a billing client against the given base URL.
func NewBillingClient(doer HTTPDoer, baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPBillingClient {
	return &HTTPBillingClient{http: doer, baseURL: baseURL, timeout: timeout, logger: logger}
}

// CreateAccount opens a billing account for the subscriber.
func (c *HTTPBillingClient) CreateAccount(ctx context.Context, params CreateBillingAccountParams) (*BillingAccount, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var account BillingAccount
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/accounts", params, &account, "billing"); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "billing account created",
		slog.String("account_id", account.ID),
		slog.String("subscriber_id", params.SubscriberID),
	)
	return &account, nil
}

// CloseAccount closes a billing account. Closing an already-closed account
// is accepted by the billing system, so the call is safe to repeat.
func (c *HTTPBillingClient) CloseAccount(ctx context.Context, accountID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/accounts/"+accountID+"/close", nil, nil, "billing"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "billing account closed", slog.String("account_id", accountID))
	return nil
}

// ReopenAccount reopens a previously closed billing account.
func (c *HTTPBillingClient) ReopenAccount(ctx context.Context, accountID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/accounts/"+accountID+"/reopen", nil, nil, "billing"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "billing account reopened", slog.String("account_id", accountID))
	return nil
}

// SuspendBilling pauses charging on the account.
func (c *HTTPBillingClient) SuspendBilling(ctx context.Context, accountID, reason string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	req := struct {
		Reason string `json:"reason"`
	}{Reason: reason}

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/accounts/"+accountID+"/suspend", req, nil, "billing"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "billing suspended",
		slog.String("account_id", accountID),
		slog.String("reason", reason),
	)
	return nil
}

// ResumeBilling resumes charging on a suspended account.
func (c *HTTPBillingClient) ResumeBilling(ctx context.Context, accountID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/api/v1/accounts/"+accountID+"/resume", nil, nil, "billing"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "billing resumed", slog.String("account_id", accountID))
	return nil
}
