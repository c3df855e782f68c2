// Package service provides the business logic of the entitlement engine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/michelrosettaa/FlowAi-sub000/internal/metrics"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	"github.com/michelrosettaa/FlowAi-sub000/internal/notify"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/provider/stripe"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

// Webhook processing outcomes, reported to the provider and to metrics.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// DefaultClaimLease bounds how long an unfinished claim blocks redeliveries
// of the same event.
const DefaultClaimLease = 5 * time.Minute

// EventProvider is the part of the billing provider the reconciler needs.
type EventProvider interface {
	HasWebhookSecret() bool
	ConstructEvent(payload []byte, signature string) (*models.WebhookEvent, error)
	ParseEvent(payload []byte) (*models.WebhookEvent, error)
	FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

// PlanResolver looks plans up in the catalog.
type PlanResolver interface {
	GetPlanBySlug(ctx context.Context, slug string) (*models.Plan, error)
	FindPlanByPriceReference(ctx context.Context, priceID string) (*models.Plan, error)
}

// WebhookReconciler turns provider events into subscription records.
type WebhookReconciler interface {
	// Verify authenticates a raw delivery and decodes the event envelope.
	Verify(payload []byte, signature string) (*models.WebhookEvent, error)

	// Handle applies one event. Configuration errors are returned as is;
	// Process decides what to do with them.
	Handle(ctx context.Context, event *models.WebhookEvent) error

	// Process claims the event id, handles the event and classifies the
	// result. A nil error means the delivery must be acknowledged; errors
	// are always worth a provider retry.
	Process(ctx context.Context, event *models.WebhookEvent) (string, error)
}

// ReconcilerConfig wires a reconciler.
type ReconcilerConfig struct {
	Provider      EventProvider
	Plans         PlanResolver
	Subscriptions repository.SubscriptionRepository
	Ledger        repository.EventLedger
	Notifier      notify.Notifier
	Logger        *slog.Logger
	// Production refuses deliveries that could not be verified.
	Production bool
	// ClaimLease defaults to DefaultClaimLease.
	ClaimLease time.Duration
}

type reconciler struct {
	provider   EventProvider
	plans      PlanResolver
	subs       repository.SubscriptionRepository
	ledger     repository.EventLedger
	notifier   notify.Notifier
	logger     *slog.Logger
	production bool
	claimLease time.Duration
	now        func() time.Time
}

// NewWebhookReconciler creates a new webhook reconciler.
func NewWebhookReconciler(cfg ReconcilerConfig) WebhookReconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	lease := cfg.ClaimLease
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &reconciler{
		provider:   cfg.Provider,
		plans:      cfg.Plans,
		subs:       cfg.Subscriptions,
		ledger:     cfg.Ledger,
		notifier:   notifier,
		logger:     logger,
		production: cfg.Production,
		claimLease: lease,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Verify checks the signature when a webhook secret is configured.
func (r *reconciler) Verify(payload []byte, signature string) (*models.WebhookEvent, error) {
	if r.provider.HasWebhookSecret() {
		return r.provider.ConstructEvent(payload, signature)
	}
	if r.production {
		return nil, apierrors.NewAuthenticationError("webhook secret not configured")
	}

	event, err := r.provider.ParseEvent(payload)
	if err != nil {
		return nil, err
	}
	r.logger.Warn("webhook signature not verified, no secret configured",
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type),
	)
	return event, nil
}

// Process implements WebhookReconciler.
func (r *reconciler) Process(ctx context.Context, event *models.WebhookEvent) (string, error) {
	claimed, err := r.ledger.Claim(ctx, event.ID, event.Type, r.now(), r.claimLease)
	if err != nil {
		r.observe(event, OutcomeFailed)
		return OutcomeFailed, err
	}
	if !claimed {
		r.logger.Info("duplicate webhook event acknowledged",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
		)
		r.observe(event, OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	outcome, err := r.handle(ctx, event)
	switch {
	case err == nil:
	case apierrors.Retryable(err):
		// The provider retries the delivery; it must not look like a duplicate.
		if relErr := r.ledger.Release(context.WithoutCancel(ctx), event.ID); relErr != nil {
			r.logger.Error("failed to release webhook claim",
				slog.String("event_id", event.ID),
				slog.String("error", relErr.Error()),
			)
		}
		r.logger.Error("webhook event failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()),
		)
		r.observe(event, OutcomeFailed)
		return OutcomeFailed, err
	default:
		// Configuration gaps and bad payload data; a redelivery cannot fix them.
		r.logger.Warn("webhook event skipped",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
			slog.String("error_kind", string(apierrors.Classify(err))),
			slog.String("error", err.Error()),
		)
		outcome = OutcomeSkipped
	}

	// A lost marker only lets the lease expire and the event be handled again.
	if err := r.ledger.Complete(context.WithoutCancel(ctx), event.ID, r.now()); err != nil {
		r.logger.Error("failed to complete webhook claim",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
	}
	r.observe(event, outcome)
	return outcome, nil
}

func (r *reconciler) observe(event *models.WebhookEvent, outcome string) {
	metrics.WebhookEvents.WithLabelValues(event.Type, outcome).Inc()
}

// Handle implements WebhookReconciler.
func (r *reconciler) Handle(ctx context.Context, event *models.WebhookEvent) error {
	_, err := r.handle(ctx, event)
	return err
}

func (r *reconciler) handle(ctx context.Context, event *models.WebhookEvent) (string, error) {
	switch event.Type {
	case models.EventSubscriptionCreated, models.EventSubscriptionUpdated:
		sub, err := decodeSubscription(event)
		if err != nil {
			return OutcomeFailed, err
		}
		return OutcomeProcessed, r.syncSubscription(ctx, sub)

	case models.EventSubscriptionDeleted:
		sub, err := decodeSubscription(event)
		if err != nil {
			return OutcomeFailed, err
		}
		return OutcomeProcessed, r.cancelSubscription(ctx, sub)

	case models.EventInvoicePaymentFailed:
		inv, err := decodeInvoice(event)
		if err != nil {
			return OutcomeFailed, err
		}
		return OutcomeProcessed, r.handlePaymentFailed(ctx, event, inv)

	case models.EventInvoicePaymentOK, models.EventInvoicePaid:
		inv, err := decodeInvoice(event)
		if err != nil {
			return OutcomeFailed, err
		}
		subID := inv.SubscriptionID()
		if subID == "" {
			// One-off invoice, nothing to reconcile.
			return OutcomeIgnored, nil
		}
		sub, err := r.provider.FetchSubscription(ctx, subID)
		if errors.Is(err, stripe.ErrNotConfigured) {
			return OutcomeFailed, apierrors.NewConfigurationError("cannot re-fetch subscription %s: %v", subID, err)
		}
		if err != nil {
			return OutcomeFailed, apierrors.ErrServiceUnavailable.WithMessage("fetch subscription from provider").Wrap(err)
		}
		return OutcomeProcessed, r.syncSubscription(ctx, sub)

	case models.EventTrialWillEnd:
		sub, err := decodeSubscription(event)
		if err != nil {
			return OutcomeFailed, err
		}
		return OutcomeProcessed, r.handleTrialEnding(ctx, event, sub)

	default:
		r.logger.Debug("ignoring webhook event", slog.String("event_type", event.Type))
		return OutcomeIgnored, nil
	}
}

// syncSubscription applies a created/updated subscription. The event is
// last-write-wins for the customer.
func (r *reconciler) syncSubscription(ctx context.Context, sub *stripe.Subscription) error {
	status, ok := stripe.MapStatus(sub.Status)
	if !ok {
		return apierrors.NewConfigurationError("subscription %s has unsupported status %q", sub.ID, sub.Status)
	}
	if status == models.StatusCancelled {
		return r.cancelSubscription(ctx, sub)
	}

	customerID := sub.CustomerReference()
	if customerID == "" {
		return apierrors.NewConfigurationError("subscription %s carries no customer reference", sub.ID)
	}

	plan, err := r.resolvePlan(ctx, sub)
	if err != nil {
		return err
	}

	start, end := sub.Period()
	_, err = r.applyProviderState(ctx, stateChange{
		CustomerID:             customerID,
		Status:                 status,
		Plan:                   plan,
		PeriodStart:            start,
		PeriodEnd:              end,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		CanceledAt:             stripe.Timestamp(sub.CanceledAt),
		TrialEnd:               stripe.Timestamp(sub.TrialEnd),
		ProviderCustomerID:     string(sub.Customer),
		ProviderSubscriptionID: sub.ID,
	})
	return err
}

// resolvePlan maps the subscription to a catalog plan: the price reference
// first, then the plan slug in metadata.
func (r *reconciler) resolvePlan(ctx context.Context, sub *stripe.Subscription) (*models.Plan, error) {
	priceID := sub.FirstPriceID()
	if priceID != "" {
		plan, err := r.plans.FindPlanByPriceReference(ctx, priceID)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			return plan, nil
		}
	}

	if slug := sub.PlanReference(); slug != "" {
		plan, err := r.plans.GetPlanBySlug(ctx, slug)
		if err == nil {
			return plan, nil
		}
		if !apierrors.Is(err, apierrors.KindNotFound) {
			return nil, err
		}
	}

	return nil, apierrors.NewConfigurationError("no plan for price %q on subscription %s", priceID, sub.ID)
}

// cancelSubscription downgrades the customer to the free plan.
func (r *reconciler) cancelSubscription(ctx context.Context, sub *stripe.Subscription) error {
	customerID := sub.CustomerReference()
	if customerID == "" && sub.ID != "" {
		local, err := r.subs.GetByProviderSubscriptionID(ctx, sub.ID)
		if err != nil {
			return err
		}
		if local != nil {
			customerID = local.CustomerID
		}
	}
	if customerID == "" {
		return apierrors.NewConfigurationError("cancelled subscription %s matches no customer", sub.ID)
	}

	current, err := r.subs.GetCurrent(ctx, customerID)
	if err != nil {
		return err
	}
	sameSubscription := current.HasProviderSubscription() && *current.ProviderSubscriptionID == sub.ID
	if current.HasProviderSubscription() && !sameSubscription && current.Status != models.StatusCancelled {
		r.logger.Info("cancellation of superseded subscription ignored",
			slog.String("customer_id", customerID),
			slog.String("subscription_id", sub.ID),
		)
		return nil
	}

	free, err := r.plans.GetPlanBySlug(ctx, models.FreePlanSlug)
	if err != nil {
		if apierrors.Is(err, apierrors.KindNotFound) {
			return apierrors.NewConfigurationError("free plan is missing from the catalog")
		}
		return err
	}

	now := r.now()
	canceledAt := stripe.Timestamp(sub.CanceledAt)
	endedAt := stripe.Timestamp(sub.EndedAt)
	if sameSubscription && current.Status == models.StatusCancelled {
		// Redelivery: keep the timestamps recorded the first time.
		if canceledAt == nil {
			canceledAt = current.CanceledAt
		}
		if endedAt == nil {
			endedAt = current.EndedAt
		}
	}
	if canceledAt == nil {
		canceledAt = &now
	}
	if endedAt == nil {
		endedAt = &now
	}

	start, end := sub.Period()
	_, err = r.applyProviderState(ctx, stateChange{
		CustomerID:             customerID,
		Status:                 models.StatusCancelled,
		Plan:                   free,
		PeriodStart:            start,
		PeriodEnd:              end,
		CanceledAt:             canceledAt,
		EndedAt:                endedAt,
		TrialEnd:               stripe.Timestamp(sub.TrialEnd),
		ProviderCustomerID:     string(sub.Customer),
		ProviderSubscriptionID: sub.ID,
	})
	return err
}

func (r *reconciler) handlePaymentFailed(ctx context.Context, event *models.WebhookEvent, inv *stripe.Invoice) error {
	local, err := r.findLocal(ctx, inv.SubscriptionID(), string(inv.Customer))
	if err != nil {
		return err
	}
	if local == nil {
		return apierrors.NewConfigurationError("invoice %s matches no local subscription", inv.ID)
	}
	if local.Status == models.StatusCancelled {
		r.logger.Info("payment failure for cancelled subscription ignored",
			slog.String("customer_id", local.CustomerID),
			slog.String("invoice_id", inv.ID),
		)
		return nil
	}

	if _, err := r.applyProviderState(ctx, stateChange{
		CustomerID: local.CustomerID,
		Status:     models.StatusPastDue,
	}); err != nil {
		return err
	}

	notice := notify.Notice{
		CustomerID: local.CustomerID,
		PlanSlug:   local.PlanSlug,
		InvoiceID:  inv.ID,
		EventID:    event.ID,
	}
	if local.ProviderSubscriptionID != nil {
		notice.ProviderSubscriptionID = *local.ProviderSubscriptionID
	}
	if err := r.notifier.PaymentFailed(ctx, notice); err != nil {
		return apierrors.ErrServiceUnavailable.WithMessage("payment failure notification").Wrap(err)
	}
	return nil
}

func (r *reconciler) handleTrialEnding(ctx context.Context, event *models.WebhookEvent, sub *stripe.Subscription) error {
	customerID := sub.CustomerReference()
	planSlug := ""
	if customerID == "" {
		local, err := r.findLocal(ctx, sub.ID, string(sub.Customer))
		if err != nil {
			return err
		}
		if local == nil {
			return apierrors.NewConfigurationError("trial ending subscription %s matches no customer", sub.ID)
		}
		customerID, planSlug = local.CustomerID, local.PlanSlug
	}
	if planSlug == "" {
		planSlug = sub.PlanReference()
	}

	err := r.notifier.TrialEnding(ctx, notify.Notice{
		CustomerID:             customerID,
		PlanSlug:               planSlug,
		ProviderSubscriptionID: sub.ID,
		TrialEnd:               stripe.Timestamp(sub.TrialEnd),
		EventID:                event.ID,
	})
	if err != nil {
		return apierrors.ErrServiceUnavailable.WithMessage("trial ending notification").Wrap(err)
	}
	return nil
}

// findLocal looks the record up by provider subscription id, then by
// provider customer id.
func (r *reconciler) findLocal(ctx context.Context, providerSubscriptionID, providerCustomerID string) (*models.Subscription, error) {
	if providerSubscriptionID != "" {
		sub, err := r.subs.GetByProviderSubscriptionID(ctx, providerSubscriptionID)
		if err != nil || sub != nil {
			return sub, err
		}
	}
	if providerCustomerID != "" {
		return r.subs.GetByProviderCustomerID(ctx, providerCustomerID)
	}
	return nil, nil
}

// stateChange is a provider-derived target state. A nil Plan means only
// the status changes.
type stateChange struct {
	CustomerID             string
	Status                 models.SubscriptionStatus
	Plan                   *models.Plan
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	EndedAt                *time.Time
	TrialEnd               *time.Time
	ProviderCustomerID     string
	ProviderSubscriptionID string
}

func (c stateChange) validate() error {
	if c.CustomerID == "" {
		return apierrors.NewValidationError("customer_id", "customer id is required")
	}
	if !c.Status.Valid() {
		return apierrors.NewValidationError("status", "unknown subscription status "+string(c.Status))
	}
	if c.PeriodStart != nil && c.PeriodEnd != nil && c.PeriodEnd.Before(*c.PeriodStart) {
		return apierrors.NewValidationError("current_period_end", "period ends before it starts")
	}
	if c.Plan != nil && c.Status == models.StatusCancelled && c.CanceledAt == nil {
		return apierrors.NewValidationError("canceled_at", "cancelled subscriptions need a cancellation time")
	}
	return nil
}

// applyProviderState is the only path that mutates subscription records.
func (r *reconciler) applyProviderState(ctx context.Context, c stateChange) (bool, error) {
	if err := c.validate(); err != nil {
		return false, err
	}

	var (
		changed bool
		err     error
	)
	if c.Plan == nil {
		changed, err = r.subs.UpdateStatus(ctx, c.CustomerID, c.Status)
	} else {
		changed, err = r.subs.Upsert(ctx, &models.Subscription{
			CustomerID:             c.CustomerID,
			PlanSlug:               c.Plan.Slug,
			Status:                 c.Status,
			CurrentPeriodStart:     c.PeriodStart,
			CurrentPeriodEnd:       c.PeriodEnd,
			CancelAtPeriodEnd:      c.CancelAtPeriodEnd,
			CanceledAt:             c.CanceledAt,
			EndedAt:                c.EndedAt,
			TrialEnd:               c.TrialEnd,
			ProviderCustomerID:     optional(c.ProviderCustomerID),
			ProviderSubscriptionID: optional(c.ProviderSubscriptionID),
		})
	}
	if err != nil {
		return false, err
	}

	if changed {
		r.logger.Info("subscription updated",
			slog.String("customer_id", c.CustomerID),
			slog.String("status", string(c.Status)),
			slog.String("plan", planSlug(c.Plan)),
		)
	}
	return changed, nil
}

func planSlug(p *models.Plan) string {
	if p == nil {
		return ""
	}
	return p.Slug
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func decodeSubscription(event *models.WebhookEvent) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Payload, &sub); err != nil {
		return nil, apierrors.NewValidationError("data.object", "malformed subscription payload")
	}
	return &sub, nil
}

func decodeInvoice(event *models.WebhookEvent) (*stripe.Invoice, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Payload, &inv); err != nil {
		return nil, apierrors.NewValidationError("data.object", "malformed invoice payload")
	}
	return &inv, nil
}

// Compile-time check to ensure reconciler implements WebhookReconciler.
var _ WebhookReconciler = (*reconciler)(nil)
