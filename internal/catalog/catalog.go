// Package catalog serves plan definitions to the reconciler, the
// entitlement checker and the checkout flow.
//
// Plans change rarely and are written only by the out-of-band seeding
// process, so reads go through a short-lived in-memory snapshot. Concurrent
// cache misses share one storage round trip. Callers always receive copies
// of the cached plans.
package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

// loadTimeout bounds a shared load, which outlives any single caller.
const loadTimeout = 10 * time.Second

// Catalog is a read-through view over a PlanRepository.
type Catalog struct {
	repo repository.PlanRepository
	ttl  time.Duration

	group singleflight.Group

	mu       sync.RWMutex
	plans    []*models.Plan
	loadedAt time.Time
	now      func() time.Time
}

// New creates a catalog. A zero ttl disables caching.
func New(repo repository.PlanRepository, ttl time.Duration) *Catalog {
	return &Catalog{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
}

// GetPlanBySlug returns the plan with the given slug, active or not.
func (c *Catalog) GetPlanBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	plans, err := c.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.Slug == slug {
			return p.Clone(), nil
		}
	}
	return nil, apierrors.NewNotFoundError("Plan")
}

// ListActivePlans returns active plans ordered by sort order, then slug.
func (c *Catalog) ListActivePlans(ctx context.Context) ([]*models.Plan, error) {
	plans, err := c.all(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.Plan, 0, len(plans))
	for _, p := range plans {
		if p.IsActive {
			active = append(active, p.Clone())
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].SortOrder != active[j].SortOrder {
			return active[i].SortOrder < active[j].SortOrder
		}
		return active[i].Slug < active[j].Slug
	})
	return active, nil
}

// FindPlanByPriceReference returns the plan whose monthly or annual price
// id equals priceID, or nil when no plan carries it.
func (c *Catalog) FindPlanByPriceReference(ctx context.Context, priceID string) (*models.Plan, error) {
	if priceID == "" {
		return nil, nil
	}
	plans, err := c.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.HasPriceReference(priceID) {
			return p.Clone(), nil
		}
	}
	return nil, nil
}

// ResolvePriceReference returns the provider price id used to buy plan for
// the given billing period.
func ResolvePriceReference(plan *models.Plan, period models.BillingPeriod) (string, error) {
	if !period.Valid() {
		return "", apierrors.NewValidationError("billing_period", "must be monthly or annual")
	}
	if plan.IsFree() {
		return "", apierrors.NewValidationError("plan", "the free plan cannot be purchased")
	}
	if !plan.IsActive {
		return "", apierrors.NewValidationError("plan", "plan is no longer offered")
	}

	ref := plan.StripePriceMonthly
	if period == models.BillingPeriodAnnual {
		ref = plan.StripePriceAnnual
	}
	if ref == nil || *ref == "" {
		return "", apierrors.NewConfigurationError("plan %q has no %s price configured", plan.Slug, period)
	}
	return *ref, nil
}

// ResolvePriceReference is the method form of the package function.
func (c *Catalog) ResolvePriceReference(plan *models.Plan, period models.BillingPeriod) (string, error) {
	return ResolvePriceReference(plan, period)
}

// Invalidate drops the cached snapshot.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.plans = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Catalog) all(ctx context.Context) ([]*models.Plan, error) {
	if c.ttl > 0 {
		c.mu.RLock()
		plans, loadedAt := c.plans, c.loadedAt
		c.mu.RUnlock()
		if plans != nil && c.now().Sub(loadedAt) < c.ttl {
			return plans, nil
		}
	}

	// The load is shared by every waiter, so one caller giving up must not
	// fail the others.
	v, err, _ := c.group.Do("plans", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		plans, err := c.repo.List(loadCtx, false)
		if err != nil {
			return nil, err
		}
		if plans == nil {
			plans = []*models.Plan{}
		}
		if c.ttl > 0 {
			c.mu.Lock()
			c.plans = plans
			c.loadedAt = c.now()
			c.mu.Unlock()
		}
		return plans, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.Plan), nil
}
