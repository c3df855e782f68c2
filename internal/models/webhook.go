package models

import (
	"encoding/json"
	"time"
)

// Billing provider event types handled by the reconciler.
const (
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventTrialWillEnd         = "customer.subscription.trial_will_end"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventInvoicePaymentOK     = "invoice.payment_succeeded"
	EventInvoicePaid          = "invoice.paid"
)

// WebhookEvent is a provider event after authentication. It is never
// persisted; only its id is kept as a dedup marker.
type WebhookEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
	// Verified is false when signature verification was skipped because no
	// secret is configured.
	Verified bool `json:"verified"`
}
