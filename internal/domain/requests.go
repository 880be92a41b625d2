package domain

// Typed requests for each workflow type. The request is snapshotted into
// Workflow.Input at creation and handed to each step's action unchanged.

// ProvisionRequest starts a new subscriber across all six systems.
type ProvisionRequest struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
	PlanID       string `json:"plan_id" validate:"required"`
	FullName     string `json:"full_name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`

	// Service address.
	AddressLine string `json:"address_line" validate:"required"`
	City        string `json:"city" validate:"required"`
	PostalCode  string `json:"postal_code" validate:"required"`

	// Optical network.
	OLTID     string `json:"olt_id" validate:"required"`
	PONPort   string `json:"pon_port" validate:"required"`
	ONUSerial string `json:"onu_serial" validate:"required"`

	// IP allocation.
	IPPoolID string `json:"ip_pool_id" validate:"required"`
}

// DeprovisionRequest tears a subscriber's service down.
type DeprovisionRequest struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
	Reason       string `json:"reason,omitempty"`

	BillingAccountID   string `json:"billing_account_id" validate:"required"`
	RadiusSubscriberID string `json:"radius_subscriber_id" validate:"required"`
	IPAllocationID     string `json:"ip_allocation_id" validate:"required"`
	OLTPortID          string `json:"olt_port_id" validate:"required"`
	CPEDeviceID        string `json:"cpe_device_id" validate:"required"`
	CPEConfigID        string `json:"cpe_config_id" validate:"required"`
}

// ActivateServiceRequest re-enables a suspended subscriber.
type ActivateServiceRequest struct {
	SubscriberID       string `json:"subscriber_id" validate:"required"`
	BillingAccountID   string `json:"billing_account_id" validate:"required"`
	RadiusSubscriberID string `json:"radius_subscriber_id" validate:"required"`
	OLTPortID          string `json:"olt_port_id" validate:"required"`
}

// SuspendServiceRequest suspends an active subscriber (e.g. non-payment).
type SuspendServiceRequest struct {
	SubscriberID       string `json:"subscriber_id" validate:"required"`
	Reason             string `json:"reason,omitempty"`
	BillingAccountID   string `json:"billing_account_id" validate:"required"`
	RadiusSubscriberID string `json:"radius_subscriber_id" validate:"required"`
	OLTPortID          string `json:"olt_port_id" validate:"required"`
}
