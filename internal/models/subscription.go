package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the local billing state of a customer.
type SubscriptionStatus string

const (
	StatusTrialing  SubscriptionStatus = "trialing"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCancelled:
		return true
	}
	return false
}

// Subscription is the current billing record of a customer.
type Subscription struct {
	ID                     uuid.UUID          `json:"id" db:"id"`
	CustomerID             string             `json:"customer_id" db:"customer_id"`
	PlanSlug               string             `json:"plan" db:"plan_slug"`
	Status                 SubscriptionStatus `json:"status" db:"status"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty" db:"current_period_end"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty" db:"canceled_at"`
	EndedAt                *time.Time         `json:"ended_at,omitempty" db:"ended_at"`
	TrialEnd               *time.Time         `json:"trial_end,omitempty" db:"trial_end"`
	ProviderCustomerID     *string            `json:"-" db:"provider_customer_id"`
	ProviderSubscriptionID *string            `json:"-" db:"provider_subscription_id"`
	CreatedAt              time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at" db:"updated_at"`
}

// NewDefaultSubscription returns the free/active record a customer gets on
// first sight.
func NewDefaultSubscription(customerID string) *Subscription {
	now := time.Now().UTC()
	return &Subscription{
		ID:         uuid.New(),
		CustomerID: customerID,
		PlanSlug:   FreePlanSlug,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasProviderSubscription reports whether the record is backed by a
// subscription at the billing provider.
func (s *Subscription) HasProviderSubscription() bool {
	return s.ProviderSubscriptionID != nil && *s.ProviderSubscriptionID != ""
}

// SubscriptionHistory is an append-only snapshot written whenever the
// current record changes.
type SubscriptionHistory struct {
	ID         string             `json:"id" db:"id"`
	CustomerID string             `json:"customer_id" db:"customer_id"`
	PlanSlug   string             `json:"plan" db:"plan_slug"`
	Status     SubscriptionStatus `json:"status" db:"status"`
	RecordedAt time.Time          `json:"recorded_at" db:"recorded_at"`
}

// SubscriptionStats summarises subscriptions for the admin dashboard.
type SubscriptionStats struct {
	Total                   int64                        `json:"total"`
	ByStatus                map[SubscriptionStatus]int64 `json:"by_status"`
	Trialing                int64                        `json:"trialing"`
	Active                  int64                        `json:"active"`
	MonthlyRecurringRevenue int64                        `json:"mrr"`
}

// Add folds one per-status aggregate row into the stats.
func (s *SubscriptionStats) Add(status SubscriptionStatus, count, mrr int64) {
	if s.ByStatus == nil {
		s.ByStatus = make(map[SubscriptionStatus]int64)
	}
	s.ByStatus[status] += count
	s.Total += count
	s.MonthlyRecurringRevenue += mrr
	switch status {
	case StatusTrialing:
		s.Trialing += count
	case StatusActive:
		s.Active += count
	}
}
