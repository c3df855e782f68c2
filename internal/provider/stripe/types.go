// Package stripe adapts the Stripe API to the billing engine: webhook
// signature verification, subscription re-fetch, and hosted checkout and
// portal sessions.
//
// Event payloads are decoded into the minimal structs below instead of the
// SDK types so that both current and older API versions decode.
package stripe

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
)

// Metadata keys written at checkout and read back from subscription events.
const (
	MetadataCustomerID = "customer_id"
	MetadataUserID     = "user_id"
	MetadataPlanID     = "plan_id"
	MetadataPlan       = "plan"
)

// ExpandableID decodes a field that is either an object id or an expanded
// object carrying one.
type ExpandableID string

// UnmarshalJSON implements json.Unmarshaler.
func (e *ExpandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

// SubscriptionItem is one line of a subscription.
type SubscriptionItem struct {
	ID    string `json:"id"`
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

// Subscription is the subset of a Stripe subscription the engine reads.
type Subscription struct {
	ID                 string            `json:"id"`
	Customer           ExpandableID      `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	EndedAt            int64             `json:"ended_at"`
	TrialEnd           int64             `json:"trial_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
}

// FirstPriceID returns the price ID from the first subscription item.
func (s *Subscription) FirstPriceID() string {
	for _, item := range s.Items.Data {
		if priceID := strings.TrimSpace(item.Price.ID); priceID != "" {
			return priceID
		}
	}
	return ""
}

// CustomerReference returns the engine's customer id carried in metadata.
func (s *Subscription) CustomerReference() string {
	if id := strings.TrimSpace(s.Metadata[MetadataCustomerID]); id != "" {
		return id
	}
	return strings.TrimSpace(s.Metadata[MetadataUserID])
}

// PlanReference returns the plan slug carried in metadata, if any.
func (s *Subscription) PlanReference() string {
	if slug := strings.TrimSpace(s.Metadata[MetadataPlanID]); slug != "" {
		return slug
	}
	return strings.TrimSpace(s.Metadata[MetadataPlan])
}

// Period returns the current billing period. Newer API versions report it
// per item; older ones on the subscription itself.
func (s *Subscription) Period() (start, end *time.Time) {
	var startUnix, endUnix int64
	if len(s.Items.Data) > 0 {
		startUnix = s.Items.Data[0].CurrentPeriodStart
		endUnix = s.Items.Data[0].CurrentPeriodEnd
	}
	if startUnix == 0 {
		startUnix = s.CurrentPeriodStart
	}
	if endUnix == 0 {
		endUnix = s.CurrentPeriodEnd
	}
	return Timestamp(startUnix), Timestamp(endUnix)
}

// Invoice is the subset of a Stripe invoice the engine reads.
type Invoice struct {
	ID           string       `json:"id"`
	Customer     ExpandableID `json:"customer"`
	Subscription ExpandableID `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription ExpandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID returns the invoice's subscription from either the
// current parent block or the older top-level field.
func (i *Invoice) SubscriptionID() string {
	if id := string(i.Parent.SubscriptionDetails.Subscription); id != "" {
		return id
	}
	return string(i.Subscription)
}

// Timestamp converts provider epoch seconds, nil for zero.
func Timestamp(unix int64) *time.Time {
	if unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}

// MapStatus translates a Stripe subscription status. The second result is
// false for statuses the engine does not know.
func MapStatus(status string) (models.SubscriptionStatus, bool) {
	switch status {
	case "trialing":
		return models.StatusTrialing, true
	case "active":
		return models.StatusActive, true
	case "past_due", "unpaid", "incomplete", "paused":
		return models.StatusPastDue, true
	case "canceled", "incomplete_expired":
		return models.StatusCancelled, true
	default:
		return "", false
	}
}
