package service

import (
	"context"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

// SubscriptionView is a customer's record together with its plan.
type SubscriptionView struct {
	Subscription *models.Subscription `json:"subscription"`
	Plan         *models.Plan         `json:"plan"`
}

// SubscriptionService exposes read-only subscription queries.
type SubscriptionService interface {
	Get(ctx context.Context, customerID string) (*SubscriptionView, error)
	History(ctx context.Context, customerID string) ([]*models.SubscriptionHistory, error)
	List(ctx context.Context, opts repository.ListOptions) ([]*models.Subscription, string, error)
	Stats(ctx context.Context) (*models.SubscriptionStats, error)
}

type subscriptionService struct {
	subs  repository.SubscriptionRepository
	plans PlanLookup
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(subs repository.SubscriptionRepository, plans PlanLookup) SubscriptionService {
	return &subscriptionService{subs: subs, plans: plans}
}

func (s *subscriptionService) Get(ctx context.Context, customerID string) (*SubscriptionView, error) {
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
	return &SubscriptionView{Subscription: sub, Plan: plan}, nil
}

func (s *subscriptionService) History(ctx context.Context, customerID string) ([]*models.SubscriptionHistory, error) {
	return s.subs.History(ctx, customerID)
}

func (s *subscriptionService) List(ctx context.Context, opts repository.ListOptions) ([]*models.Subscription, string, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, "", apierrors.NewValidationError("status", "unknown subscription status")
	}
	return s.subs.List(ctx, opts)
}

func (s *subscriptionService) Stats(ctx context.Context) (*models.SubscriptionStats, error) {
	return s.subs.Stats(ctx)
}

// Compile-time check to ensure subscriptionService implements SubscriptionService.
var _ SubscriptionService = (*subscriptionService)(nil)
