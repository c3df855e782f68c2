// Package repository provides data access layer implementations.
//
// Every store exposes the same contract for the PostgreSQL implementations
// in this package, the SQLite ones in repository/sqlite, and the Redis ones
// in repository/redisstore. Mutations that must survive concurrent callers
// are single statements (or one transaction) at the storage layer; none of
// them is a read followed by a write from application code.
package repository

import (
	"context"
	"time"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
)

// PlanRepository defines the interface for plan catalog storage.
type PlanRepository interface {
	// GetBySlug returns the plan or nil when the slug is unknown.
	GetBySlug(ctx context.Context, slug string) (*models.Plan, error)

	// GetByPriceReference returns the plan whose monthly or annual external
	// price id equals priceID, or nil.
	GetByPriceReference(ctx context.Context, priceID string) (*models.Plan, error)

	// List returns plans ordered by sort order, then slug.
	List(ctx context.Context, activeOnly bool) ([]*models.Plan, error)

	// Upsert creates or replaces a plan. Used by the seeding CLI.
	Upsert(ctx context.Context, plan *models.Plan) error
}

// SubscriptionRepository defines the interface for current subscription
// records.
type SubscriptionRepository interface {
	// GetCurrent returns the customer's subscription, creating the default
	// free/active record when none exists. It never reports "not found".
	GetCurrent(ctx context.Context, customerID string) (*models.Subscription, error)

	// Upsert atomically replaces every field of the customer's record and
	// reports whether anything changed. A history row is appended when it did.
	// A cancelled record is never revived by a non-cancelled state for the
	// same provider subscription; such writes report false.
	Upsert(ctx context.Context, sub *models.Subscription) (bool, error)

	// UpdateStatus sets only the status in a single statement. Cancelled
	// records are left untouched.
	UpdateStatus(ctx context.Context, customerID string, status models.SubscriptionStatus) (bool, error)

	// GetByProviderSubscriptionID returns the record or nil.
	GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)

	// GetByProviderCustomerID returns the record or nil.
	GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*models.Subscription, error)

	// List pages through records ordered by customer id.
	List(ctx context.Context, opts ListOptions) ([]*models.Subscription, string, error)

	// History returns the change log of a customer, oldest first.
	History(ctx context.Context, customerID string) ([]*models.SubscriptionHistory, error)

	// Stats aggregates counts and recurring revenue at request time.
	Stats(ctx context.Context) (*models.SubscriptionStats, error)
}

// UsageRepository defines the interface for period-scoped usage counters.
type UsageRepository interface {
	// Get returns the counter value, 0 when absent.
	Get(ctx context.Context, customerID string, feature models.Feature, periodKey string) (int64, error)

	// Increment atomically adds amount and returns the new total.
	Increment(ctx context.Context, customerID string, feature models.Feature, periodKey string, amount int64) (int64, error)

	// ListForPeriod returns all counters of a customer for one period.
	ListForPeriod(ctx context.Context, customerID, periodKey string) (map[models.Feature]int64, error)
}

// EventLedger tracks webhook deliveries. A claim marks an event as in
// flight; a completed event is a permanent dedup marker.
type EventLedger interface {
	// Claim takes eventID at the given time. It reports false when the event
	// was completed or when another claim younger than lease is in flight.
	// A claim older than lease was left behind by a crashed worker and is
	// taken over.
	Claim(ctx context.Context, eventID, eventType string, at time.Time, lease time.Duration) (bool, error)

	// Complete marks a claimed event as handled.
	Complete(ctx context.Context, eventID string, at time.Time) error

	// Release removes a claim so a redelivery is processed again.
	Release(ctx context.Context, eventID string) error

	// Prune drops entries claimed before now minus retention and returns how
	// many were removed. Stores with native expiry return 0.
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// DefaultPageSize is used when ListOptions.Limit is unset.
const DefaultPageSize = 50

// MaxPageSize caps ListOptions.Limit.
const MaxPageSize = 500

// ListOptions controls admin listing.
type ListOptions struct {
	// Cursor is the last customer id of the previous page.
	Cursor string
	Limit  int
	Status models.SubscriptionStatus
}

// PageSize returns the effective page size.
func (o ListOptions) PageSize() int {
	switch {
	case o.Limit <= 0:
		return DefaultPageSize
	case o.Limit > MaxPageSize:
		return MaxPageSize
	default:
		return o.Limit
	}
}

// Paginate trims a result fetched with limit+1 rows and returns the cursor
// of the next page, empty on the last page.
func Paginate(subs []*models.Subscription, limit int) ([]*models.Subscription, string) {
	if len(subs) <= limit {
		return subs, ""
	}
	subs = subs[:limit]
	return subs, subs[limit-1].CustomerID
}

// NewStats returns stats with every status present at zero.
func NewStats() *models.SubscriptionStats {
	stats := &models.SubscriptionStats{ByStatus: make(map[models.SubscriptionStatus]int64)}
	for _, s := range []models.SubscriptionStatus{
		models.StatusTrialing, models.StatusActive, models.StatusPastDue, models.StatusCancelled,
	} {
		stats.ByStatus[s] = 0
	}
	return stats
}

// ValidateIncrement rejects non-positive increments; counters never go down.
func ValidateIncrement(amount int64) error {
	if amount <= 0 {
		return apierrors.NewValidationError("amount", "must be greater than zero")
	}
	return nil
}
