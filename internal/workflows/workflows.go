package workflows

import (
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/clients"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/saga"
)

// Step actions call external systems, so transient failures are expected;
// every step retries with the standard backoff before the saga gives up.
const stepMaxRetries = 3

// workflowMaxRetries bounds operator-initiated retries of a failed workflow.
const workflowMaxRetries = 3

// Clients bundles the downstream-system clients the workflow definitions are
// built from.
type Clients struct {
	Billing clients.BillingClient
	Address clients.AddressClient
	Radius  clients.RadiusClient
	IPAM    clients.IPAMClient
	OLT     clients.OLTClient
	CPE     clients.CPEClient
}

// NewRegistry builds the definition registry with all four subscriber
// lifecycle workflows. Called once at startup.
func NewRegistry(c Clients) *saga.Registry {
	r := saga.NewRegistry()
	r.MustRegister(Provision(c))
	r.MustRegister(Deprovision(c))
	r.MustRegister(ActivateService(c))
	r.MustRegister(SuspendService(c))
	return r
}
