// Package models defines the data models for the entitlement engine.
package models

import (
	"time"
)

// FreePlanSlug is the slug of the plan every customer falls back to.
const FreePlanSlug = "free"

// Unlimited marks a feature limit with no quota.
const Unlimited int64 = -1

// Feature is a named, quota-gated capability.
type Feature string

const (
	FeatureAIMessages     Feature = "ai_messages"
	FeatureEmailSends     Feature = "email_sends"
	FeatureCalendarSyncs  Feature = "calendar_syncs"
	FeatureEmailCampaigns Feature = "email_campaigns"
)

// AllFeatures is the fixed set of gated features, in display order.
var AllFeatures = []Feature{
	FeatureAIMessages,
	FeatureEmailSends,
	FeatureCalendarSyncs,
	FeatureEmailCampaigns,
}

// Valid reports whether f is one of the known features.
func (f Feature) Valid() bool {
	for _, known := range AllFeatures {
		if f == known {
			return true
		}
	}
	return false
}

// DisplayName returns a human readable feature name.
func (f Feature) DisplayName() string {
	switch f {
	case FeatureAIMessages:
		return "AI messages"
	case FeatureEmailSends:
		return "email sends"
	case FeatureCalendarSyncs:
		return "calendar syncs"
	case FeatureEmailCampaigns:
		return "email campaigns"
	default:
		return string(f)
	}
}

// BillingPeriod selects the monthly or annual price of a plan.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodAnnual  BillingPeriod = "annual"
)

// Valid reports whether p is a known billing period.
func (p BillingPeriod) Valid() bool {
	return p == BillingPeriodMonthly || p == BillingPeriodAnnual
}

// Plan is an entry of the plan catalog.
type Plan struct {
	Slug               string            `json:"slug" db:"slug" yaml:"slug" validate:"required,lowercase,max=64"`
	Name               string            `json:"name" db:"name" yaml:"name" validate:"required,max=128"`
	PriceMonthly       int64             `json:"price_monthly" db:"price_monthly" yaml:"price_monthly" validate:"gte=0"`
	PriceAnnual        int64             `json:"price_annual" db:"price_annual" yaml:"price_annual" validate:"gte=0"`
	StripePriceMonthly *string           `json:"-" db:"stripe_price_monthly" yaml:"stripe_price_monthly"`
	StripePriceAnnual  *string           `json:"-" db:"stripe_price_annual" yaml:"stripe_price_annual"`
	Limits             map[Feature]int64 `json:"limits" db:"limits" yaml:"limits" validate:"dive,gte=-1"`
	IsActive           bool              `json:"is_active" db:"is_active" yaml:"is_active"`
	SortOrder          int               `json:"sort_order" db:"sort_order" yaml:"sort_order"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at" yaml:"-"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at" yaml:"-"`
}

// IsFree reports whether p is the free plan.
func (p *Plan) IsFree() bool {
	return p.Slug == FreePlanSlug
}

// Limit returns the configured limit for a feature. Features missing from
// the limits map are disabled.
func (p *Plan) Limit(f Feature) int64 {
	if p.Limits == nil {
		return 0
	}
	limit, ok := p.Limits[f]
	if !ok {
		return 0
	}
	return limit
}

// Clone returns a deep copy of p.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	if p.Limits != nil {
		c.Limits = make(map[Feature]int64, len(p.Limits))
		for f, limit := range p.Limits {
			c.Limits[f] = limit
		}
	}
	c.StripePriceMonthly = cloneString(p.StripePriceMonthly)
	c.StripePriceAnnual = cloneString(p.StripePriceAnnual)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// HasPriceReference reports whether id is the monthly or annual price of p.
func (p *Plan) HasPriceReference(id string) bool {
	if id == "" {
		return false
	}
	if p.StripePriceMonthly != nil && *p.StripePriceMonthly == id {
		return true
	}
	return p.StripePriceAnnual != nil && *p.StripePriceAnnual == id
}
