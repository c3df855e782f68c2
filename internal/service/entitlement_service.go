package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/michelrosettaa/FlowAi-sub000/internal/metrics"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

// Period key layouts.
const (
	billingPeriodKeyLayout  = "2006-01-02"
	calendarPeriodKeyLayout = "2006-01"
)

// Decision is the answer to an entitlement check. Denials are decisions,
// not errors.
type Decision struct {
	Allowed      bool           `json:"allowed"`
	Feature      models.Feature `json:"feature"`
	CurrentUsage int64          `json:"current_usage"`
	Limit        int64          `json:"limit"`
	Unlimited    bool           `json:"unlimited"`
	PlanSlug     string         `json:"plan"`
	PlanName     string         `json:"plan_name"`
	PeriodKey    string         `json:"period_key"`
	Message      string         `json:"message,omitempty"`
}

// EntitlementService answers "may this customer use this feature now".
//
// Callers check before the gated action and consume only after it
// succeeded. The service does not enforce that ordering.
type EntitlementService interface {
	Check(ctx context.Context, customerID string, feature models.Feature) (*Decision, error)
	Consume(ctx context.Context, customerID string, feature models.Feature, amount int64) (*models.FeatureUsage, error)
	Summary(ctx context.Context, customerID string) (*models.UsageSummary, error)
}

// PlanLookup returns a catalog plan by slug.
type PlanLookup interface {
	GetPlanBySlug(ctx context.Context, slug string) (*models.Plan, error)
}

type entitlementService struct {
	subs   repository.SubscriptionRepository
	plans  PlanLookup
	usage  repository.UsageRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewEntitlementService creates a new entitlement service.
func NewEntitlementService(
	subs repository.SubscriptionRepository,
	plans PlanLookup,
	usage repository.UsageRepository,
	logger *slog.Logger,
) EntitlementService {
	if logger == nil {
		logger = slog.Default()
	}
	return &entitlementService{
		subs:   subs,
		plans:  plans,
		usage:  usage,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Check implements EntitlementService.
func (s *entitlementService) Check(ctx context.Context, customerID string, feature models.Feature) (*Decision, error) {
	sub, plan, err := s.resolve(ctx, customerID, feature)
	if err != nil {
		return nil, err
	}

	d := &Decision{
		Feature:   feature,
		Limit:     plan.Limit(feature),
		PlanSlug:  plan.Slug,
		PlanName:  plan.Name,
		PeriodKey: PeriodKey(sub, s.now()),
	}

	if d.Limit == models.Unlimited {
		d.Allowed = true
		d.Unlimited = true
		metrics.ObserveDecision(string(feature), true)
		return d, nil
	}

	used, err := s.usage.Get(ctx, customerID, feature, d.PeriodKey)
	if err != nil {
		return nil, err
	}
	d.CurrentUsage = used
	d.Allowed = used < d.Limit
	if !d.Allowed {
		d.Message = UpgradeMessage(feature, plan.Name, d.Limit)
	}

	metrics.ObserveDecision(string(feature), d.Allowed)
	return d, nil
}

// Consume implements EntitlementService. An amount of zero counts as one.
func (s *entitlementService) Consume(ctx context.Context, customerID string, feature models.Feature, amount int64) (*models.FeatureUsage, error) {
	if amount == 0 {
		amount = 1
	}
	if err := repository.ValidateIncrement(amount); err != nil {
		return nil, err
	}

	sub, plan, err := s.resolve(ctx, customerID, feature)
	if err != nil {
		return nil, err
	}

	limit := plan.Limit(feature)
	if limit == models.Unlimited {
		return &models.FeatureUsage{Feature: feature, Limit: limit, Unlimited: true}, nil
	}

	periodKey := PeriodKey(sub, s.now())
	total, err := s.usage.Increment(ctx, customerID, feature, periodKey, amount)
	if err != nil {
		return nil, err
	}
	metrics.UsageConsumed.WithLabelValues(string(feature)).Add(float64(amount))

	if total > limit {
		s.logger.Debug("usage above plan limit",
			slog.String("customer_id", customerID),
			slog.String("feature", string(feature)),
			slog.Int64("used", total),
			slog.Int64("limit", limit),
		)
	}
	return &models.FeatureUsage{Feature: feature, Used: total, Limit: limit}, nil
}

// Summary implements EntitlementService.
func (s *entitlementService) Summary(ctx context.Context, customerID string) (*models.UsageSummary, error) {
	if customerID == "" {
		return nil, apierrors.NewValidationError("customer_id", "customer id is required")
	}
	sub, err := s.subs.GetCurrent(ctx, customerID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.GetPlanBySlug(ctx, sub.PlanSlug)
	if err != nil {
		return nil, err
	}

	periodKey := PeriodKey(sub, s.now())
	counts, err := s.usage.ListForPeriod(ctx, customerID, periodKey)
	if err != nil {
		return nil, err
	}

	summary := &models.UsageSummary{
		CustomerID: customerID,
		Plan:       plan.Slug,
		PlanName:   plan.Name,
		PeriodKey:  periodKey,
		Features:   make([]models.FeatureUsage, 0, len(models.AllFeatures)),
	}
	for _, f := range models.AllFeatures {
		limit := plan.Limit(f)
		summary.Features = append(summary.Features, models.FeatureUsage{
			Feature:   f,
			Used:      counts[f],
			Limit:     limit,
			Unlimited: limit == models.Unlimited,
		})
	}
	return summary, nil
}

func (s *entitlementService) resolve(ctx context.Context, customerID string, feature models.Feature) (*models.Subscription, *models.Plan, error) {
	if customerID == "" {
		return nil, nil, apierrors.NewValidationError("customer_id", "customer id is required")
	}
	if !feature.Valid() {
		return nil, nil, apierrors.NewValidationError("feature", fmt.Sprintf("unknown feature %q", feature))
	}

	sub, err := s.subs.GetCurrent(ctx, customerID)
	if err != nil {
		return nil, nil, err
	}
	plan, err := s.plans.GetPlanBySlug(ctx, sub.PlanSlug)
	if err != nil {
		return nil, nil, err
	}
	return sub, plan, nil
}

// PeriodKey scopes usage counters. Records backed by a provider
// subscription use the billing period start; everyone else counts per
// calendar month. A cancelled record keeps its billing period until the
// period ends, so dropping to the free plan does not reset usage.
func PeriodKey(sub *models.Subscription, now time.Time) string {
	if sub == nil || !sub.HasProviderSubscription() || sub.CurrentPeriodStart == nil {
		return now.UTC().Format(calendarPeriodKeyLayout)
	}
	if sub.Status == models.StatusCancelled &&
		(sub.CurrentPeriodEnd == nil || !now.Before(*sub.CurrentPeriodEnd)) {
		return now.UTC().Format(calendarPeriodKeyLayout)
	}
	return sub.CurrentPeriodStart.UTC().Format(billingPeriodKeyLayout)
}

// UpgradeMessage tells a customer which limit they hit on which plan.
func UpgradeMessage(feature models.Feature, planName string, limit int64) string {
	if limit <= 0 {
		return fmt.Sprintf("%s are not included in the %s plan. Upgrade to unlock them.",
			capitalize(feature.DisplayName()), planName)
	}
	return fmt.Sprintf("You've used all %d %s included in the %s plan. Upgrade to get more.",
		limit, feature.DisplayName(), planName)
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// Compile-time check to ensure entitlementService implements EntitlementService.
var _ EntitlementService = (*entitlementService)(nil)
