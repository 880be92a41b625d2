package domain

// WorkflowContext is the scratchpad accumulated across a workflow's steps.
// Every field is optional; a step reads the fields earlier steps populated
// and contributes its own through Merge. The four workflow types share this
// field space, which gives compile-time visibility into what each step may
// read or write instead of an open key/value map.
type WorkflowContext struct {
	SubscriberID string `json:"subscriber_id,omitempty"`
	PlanID       string `json:"plan_id,omitempty"`

	// Billing ledger.
	BillingAccountID string `json:"billing_account_id,omitempty"`
	BillingState     string `json:"billing_state,omitempty"`

	// Address registry.
	ServiceAddressID string `json:"service_address_id,omitempty"`

	// RADIUS AAA.
	RadiusSubscriberID string `json:"radius_subscriber_id,omitempty"`
	RadiusUsername     string `json:"radius_username,omitempty"`
	RadiusState        string `json:"radius_state,omitempty"`

	// IP address management.
	IPAllocationID string `json:"ip_allocation_id,omitempty"`
	AllocatedIP    string `json:"allocated_ip,omitempty"`

	// Optical-network (OLT) controller.
	OLTPortID string `json:"olt_port_id,omitempty"`
	ONUSerial string `json:"onu_serial,omitempty"`
	PortState string `json:"port_state,omitempty"`

	// Premises-equipment (CPE) controller.
	CPEDeviceID string `json:"cpe_device_id,omitempty"`
	CPEConfigID string `json:"cpe_config_id,omitempty"`
}

// Merge copies every non-empty field of other onto c. Forward execution only
// ever merges, never clears, so accumulated values survive step to step.
func (c *WorkflowContext) Merge(other WorkflowContext) {
	if other.SubscriberID != "" {
		c.SubscriberID = other.SubscriberID
	}
	if other.PlanID != "" {
		c.PlanID = other.PlanID
	}
	if other.BillingAccountID != "" {
		c.BillingAccountID = other.BillingAccountID
	}
	if other.BillingState != "" {
		c.BillingState = other.BillingState
	}
	if other.ServiceAddressID != "" {
		c.ServiceAddressID = other.ServiceAddressID
	}
	if other.RadiusSubscriberID != "" {
		c.RadiusSubscriberID = other.RadiusSubscriberID
	}
	if other.RadiusUsername != "" {
		c.RadiusUsername = other.RadiusUsername
	}
	if other.RadiusState != "" {
		c.RadiusState = other.RadiusState
	}
	if other.IPAllocationID != "" {
		c.IPAllocationID = other.IPAllocationID
	}
	if other.AllocatedIP != "" {
		c.AllocatedIP = other.AllocatedIP
	}
	if other.OLTPortID != "" {
		c.OLTPortID = other.OLTPortID
	}
	if other.ONUSerial != "" {
		c.ONUSerial = other.ONUSerial
	}
	if other.PortState != "" {
		c.PortState = other.PortState
	}
	if other.CPEDeviceID != "" {
		c.CPEDeviceID = other.CPEDeviceID
	}
	if other.CPEConfigID != "" {
		c.CPEConfigID = other.CPEConfigID
	}
}

// IsZero reports whether no field has been populated.
func (c WorkflowContext) IsZero() bool {
	return c == WorkflowContext{}
}
