package models

import (
	"time"
)

// UsageCounter is the consumption of one feature by one customer within
// one period.
type UsageCounter struct {
	CustomerID string    `json:"customer_id" db:"customer_id"`
	Feature    Feature   `json:"feature" db:"feature"`
	PeriodKey  string    `json:"period_key" db:"period_key"`
	Count      int64     `json:"count" db:"count"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// FeatureUsage is a usage/limit pair reported to customers.
type FeatureUsage struct {
	Feature   Feature `json:"feature"`
	Used      int64   `json:"used"`
	Limit     int64   `json:"limit"`
	Unlimited bool    `json:"unlimited"`
}

// UsageSummary represents usage of every feature in the current period.
type UsageSummary struct {
	CustomerID string         `json:"customer_id"`
	Plan       string         `json:"plan"`
	PlanName   string         `json:"plan_name"`
	PeriodKey  string         `json:"period_key"`
	Features   []FeatureUsage `json:"features"`
}
