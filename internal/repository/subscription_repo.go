package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/pkg/ulid"
)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, customer_id, plan_slug, status, current_period_start, current_period_end,
		cancel_at_period_end, canceled_at, ended_at, trial_end, provider_customer_id, provider_subscription_id,
		created_at, updated_at`

// GetCurrent returns the current record, inserting the free default first.
func (r *subscriptionRepo) GetCurrent(ctx context.Context, customerID string) (*models.Subscription, error) {
	insert := `
		INSERT INTO subscriptions (id, customer_id, plan_slug, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_id) DO NOTHING`

	if _, err := r.pool.Exec(ctx, insert, uuid.New(), customerID, models.FreePlanSlug, models.StatusActive); err != nil {
		return nil, apierrors.NewStorageError("create default subscription", err)
	}

	sub, err := r.getBy(ctx, "customer_id", customerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apierrors.NewStorageError("get subscription", pgx.ErrNoRows)
	}
	return sub, nil
}

// Upsert replaces the customer's record and appends history when it changed.
func (r *subscriptionRepo) Upsert(ctx context.Context, sub *models.Subscription) (bool, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, apierrors.NewStorageError("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO subscriptions (id, customer_id, plan_slug, status, current_period_start, current_period_end,
			cancel_at_period_end, canceled_at, ended_at, trial_end, provider_customer_id, provider_subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (customer_id) DO UPDATE SET
			plan_slug = EXCLUDED.plan_slug,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			canceled_at = EXCLUDED.canceled_at,
			ended_at = EXCLUDED.ended_at,
			trial_end = EXCLUDED.trial_end,
			provider_customer_id = EXCLUDED.provider_customer_id,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			updated_at = NOW()
		WHERE (subscriptions.plan_slug, subscriptions.status, subscriptions.current_period_start,
				subscriptions.current_period_end, subscriptions.cancel_at_period_end, subscriptions.canceled_at,
				subscriptions.ended_at, subscriptions.trial_end, subscriptions.provider_customer_id,
				subscriptions.provider_subscription_id)
			IS DISTINCT FROM
			(EXCLUDED.plan_slug, EXCLUDED.status, EXCLUDED.current_period_start, EXCLUDED.current_period_end,
				EXCLUDED.cancel_at_period_end, EXCLUDED.canceled_at, EXCLUDED.ended_at, EXCLUDED.trial_end,
				EXCLUDED.provider_customer_id, EXCLUDED.provider_subscription_id)
			AND NOT (subscriptions.status = 'cancelled'
				AND EXCLUDED.status <> 'cancelled'
				AND subscriptions.provider_subscription_id IS NOT DISTINCT FROM EXCLUDED.provider_subscription_id)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRow(ctx, query,
		sub.ID,
		sub.CustomerID,
		sub.PlanSlug,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CanceledAt,
		sub.EndedAt,
		sub.TrialEnd,
		sub.ProviderCustomerID,
		sub.ProviderSubscriptionID,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unchanged, or a cancelled record this write may not revive.
		return false, nil
	}
	if err != nil {
		return false, apierrors.NewStorageError("upsert subscription", err)
	}

	if err := appendHistory(ctx, tx, sub.CustomerID, sub.PlanSlug, sub.Status); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, apierrors.NewStorageError("commit subscription", err)
	}
	return true, nil
}

// UpdateStatus changes only the status column.
func (r *subscriptionRepo) UpdateStatus(ctx context.Context, customerID string, status models.SubscriptionStatus) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, apierrors.NewStorageError("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE subscriptions SET status = $2, updated_at = NOW()
		WHERE customer_id = $1 AND status <> $2 AND status <> 'cancelled'
		RETURNING plan_slug`

	var planSlug string
	err = tx.QueryRow(ctx, query, customerID, status).Scan(&planSlug)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apierrors.NewStorageError("update subscription status", err)
	}

	if err := appendHistory(ctx, tx, customerID, planSlug, status); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, apierrors.NewStorageError("commit subscription status", err)
	}
	return true, nil
}

// GetByProviderSubscriptionID looks a record up by provider subscription id.
func (r *subscriptionRepo) GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return r.getBy(ctx, "provider_subscription_id", providerSubscriptionID)
}

// GetByProviderCustomerID looks a record up by provider customer id.
func (r *subscriptionRepo) GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*models.Subscription, error) {
	return r.getBy(ctx, "provider_customer_id", providerCustomerID)
}

// getBy only ever receives column names from this file.
func (r *subscriptionRepo) getBy(ctx context.Context, column, value string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` + column + ` = $1
		ORDER BY updated_at DESC LIMIT 1`

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.NewStorageError("get subscription", err)
	}
	return sub, nil
}

// List pages through subscriptions ordered by customer id.
func (r *subscriptionRepo) List(ctx context.Context, opts ListOptions) ([]*models.Subscription, string, error) {
	limit := opts.PageSize()
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE customer_id > $1 AND ($2 = '' OR status = $2)
		ORDER BY customer_id
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, opts.Cursor, string(opts.Status), limit+1)
	if err != nil {
		return nil, "", apierrors.NewStorageError("list subscriptions", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, "", apierrors.NewStorageError("scan subscription", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, "", apierrors.NewStorageError("list subscriptions", err)
	}

	subs, next := Paginate(subs, limit)
	return subs, next, nil
}

// History returns the customer's change log, oldest first.
func (r *subscriptionRepo) History(ctx context.Context, customerID string) ([]*models.SubscriptionHistory, error) {
	query := `
		SELECT id, customer_id, plan_slug, status, recorded_at
		FROM subscription_history
		WHERE customer_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, apierrors.NewStorageError("list subscription history", err)
	}
	defer rows.Close()

	var entries []*models.SubscriptionHistory
	for rows.Next() {
		var h models.SubscriptionHistory
		if err := rows.Scan(&h.ID, &h.CustomerID, &h.PlanSlug, &h.Status, &h.RecordedAt); err != nil {
			return nil, apierrors.NewStorageError("scan subscription history", err)
		}
		entries = append(entries, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.NewStorageError("list subscription history", err)
	}
	return entries, nil
}

// Stats aggregates subscription counts and recurring revenue.
func (r *subscriptionRepo) Stats(ctx context.Context) (*models.SubscriptionStats, error) {
	query := `
		SELECT s.status, COUNT(*),
			COALESCE(SUM(CASE WHEN s.status IN ('active', 'past_due') THEN p.price_monthly ELSE 0 END), 0)
		FROM subscriptions s
		JOIN plans p ON p.slug = s.plan_slug
		GROUP BY s.status`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, apierrors.NewStorageError("subscription stats", err)
	}
	defer rows.Close()

	stats := NewStats()
	for rows.Next() {
		var (
			status models.SubscriptionStatus
			count  int64
			mrr    int64
		)
		if err := rows.Scan(&status, &count, &mrr); err != nil {
			return nil, apierrors.NewStorageError("scan subscription stats", err)
		}
		stats.Add(status, count, mrr)
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.NewStorageError("subscription stats", err)
	}
	return stats, nil
}

func appendHistory(ctx context.Context, tx pgx.Tx, customerID, planSlug string, status models.SubscriptionStatus) error {
	now := time.Now().UTC()
	_, err := tx.Exec(ctx,
		`INSERT INTO subscription_history (id, customer_id, plan_slug, status, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		ulid.NewFromTime(now), customerID, planSlug, status, now,
	)
	if err != nil {
		return apierrors.NewStorageError("append subscription history", err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(
		&s.ID,
		&s.CustomerID,
		&s.PlanSlug,
		&s.Status,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.CanceledAt,
		&s.EndedAt,
		&s.TrialEnd,
		&s.ProviderCustomerID,
		&s.ProviderSubscriptionID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Compile-time check to ensure subscriptionRepo implements SubscriptionRepository.
var _ SubscriptionRepository = (*subscriptionRepo)(nil)
