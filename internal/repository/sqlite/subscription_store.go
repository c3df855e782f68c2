package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/pkg/ulid"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

type subscriptionStore struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a subscription repository on db.
func NewSubscriptionRepository(db *sql.DB) repository.SubscriptionRepository {
	return &subscriptionStore{db: db}
}

const subscriptionColumns = `id, customer_id, plan_slug, status, current_period_start, current_period_end,
	cancel_at_period_end, canceled_at, ended_at, trial_end, provider_customer_id, provider_subscription_id,
	created_at, updated_at`

func (s *subscriptionStore) GetCurrent(ctx context.Context, customerID string) (*models.Subscription, error) {
	now := nowUnix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, customer_id, plan_slug, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_id) DO NOTHING`,
		uuid.New().String(), customerID, models.FreePlanSlug, string(models.StatusActive), now, now)
	if err != nil {
		return nil, apierrors.NewStorageError("create default subscription", err)
	}

	sub, err := s.getBy(ctx, "customer_id", customerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apierrors.NewStorageError("get subscription", sql.ErrNoRows)
	}
	return sub, nil
}

func (s *subscriptionStore) Upsert(ctx context.Context, sub *models.Subscription) (bool, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apierrors.NewStorageError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUnix()
	var (
		id                   string
		createdAt, updatedAt int64
	)
	err = tx.QueryRowContext(ctx, `
		INSERT INTO subscriptions (id, customer_id, plan_slug, status, current_period_start, current_period_end,
			cancel_at_period_end, canceled_at, ended_at, trial_end, provider_customer_id, provider_subscription_id,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_id) DO UPDATE SET
			plan_slug = excluded.plan_slug,
			status = excluded.status,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			canceled_at = excluded.canceled_at,
			ended_at = excluded.ended_at,
			trial_end = excluded.trial_end,
			provider_customer_id = excluded.provider_customer_id,
			provider_subscription_id = excluded.provider_subscription_id,
			updated_at = excluded.updated_at
		WHERE (subscriptions.plan_slug IS NOT excluded.plan_slug
			OR subscriptions.status IS NOT excluded.status
			OR subscriptions.current_period_start IS NOT excluded.current_period_start
			OR subscriptions.current_period_end IS NOT excluded.current_period_end
			OR subscriptions.cancel_at_period_end IS NOT excluded.cancel_at_period_end
			OR subscriptions.canceled_at IS NOT excluded.canceled_at
			OR subscriptions.ended_at IS NOT excluded.ended_at
			OR subscriptions.trial_end IS NOT excluded.trial_end
			OR subscriptions.provider_customer_id IS NOT excluded.provider_customer_id
			OR subscriptions.provider_subscription_id IS NOT excluded.provider_subscription_id)
			AND NOT (subscriptions.status = 'cancelled'
				AND excluded.status <> 'cancelled'
				AND subscriptions.provider_subscription_id IS excluded.provider_subscription_id)
		RETURNING id, created_at, updated_at`,
		sub.ID.String(),
		sub.CustomerID,
		sub.PlanSlug,
		string(sub.Status),
		toUnix(sub.CurrentPeriodStart),
		toUnix(sub.CurrentPeriodEnd),
		boolInt(sub.CancelAtPeriodEnd),
		toUnix(sub.CanceledAt),
		toUnix(sub.EndedAt),
		toUnix(sub.TrialEnd),
		optString(sub.ProviderCustomerID),
		optString(sub.ProviderSubscriptionID),
		now,
		now,
	).Scan(&id, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apierrors.NewStorageError("upsert subscription", err)
	}

	if parsed, err := uuid.Parse(id); err == nil {
		sub.ID = parsed
	}
	sub.CreatedAt = time.Unix(createdAt, 0).UTC()
	sub.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if err := appendHistory(ctx, tx, sub.CustomerID, sub.PlanSlug, sub.Status); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, apierrors.NewStorageError("commit subscription", err)
	}
	return true, nil
}

func (s *subscriptionStore) UpdateStatus(ctx context.Context, customerID string, status models.SubscriptionStatus) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apierrors.NewStorageError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var planSlug string
	err = tx.QueryRowContext(ctx, `
		UPDATE subscriptions SET status = ?, updated_at = ?
		WHERE customer_id = ? AND status <> ? AND status <> 'cancelled'
		RETURNING plan_slug`,
		string(status), nowUnix(), customerID, string(status),
	).Scan(&planSlug)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apierrors.NewStorageError("update subscription status", err)
	}

	if err := appendHistory(ctx, tx, customerID, planSlug, status); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, apierrors.NewStorageError("commit subscription status", err)
	}
	return true, nil
}

func (s *subscriptionStore) GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return s.getBy(ctx, "provider_subscription_id", providerSubscriptionID)
}

func (s *subscriptionStore) GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*models.Subscription, error) {
	return s.getBy(ctx, "provider_customer_id", providerCustomerID)
}

func (s *subscriptionStore) getBy(ctx context.Context, column, value string) (*models.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE `+column+` = ? ORDER BY updated_at DESC LIMIT 1`,
		value)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.NewStorageError("get subscription", err)
	}
	return sub, nil
}

func (s *subscriptionStore) List(ctx context.Context, opts repository.ListOptions) ([]*models.Subscription, string, error) {
	limit := opts.PageSize()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE customer_id > ? AND (? = '' OR status = ?)
		ORDER BY customer_id
		LIMIT ?`,
		opts.Cursor, string(opts.Status), string(opts.Status), limit+1)
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

	subs, next := repository.Paginate(subs, limit)
	return subs, next, nil
}

func (s *subscriptionStore) History(ctx context.Context, customerID string) ([]*models.SubscriptionHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, plan_slug, status, recorded_at
		FROM subscription_history
		WHERE customer_id = ?
		ORDER BY id`, customerID)
	if err != nil {
		return nil, apierrors.NewStorageError("list subscription history", err)
	}
	defer rows.Close()

	var entries []*models.SubscriptionHistory
	for rows.Next() {
		var (
			h          models.SubscriptionHistory
			recordedAt int64
		)
		if err := rows.Scan(&h.ID, &h.CustomerID, &h.PlanSlug, &h.Status, &recordedAt); err != nil {
			return nil, apierrors.NewStorageError("scan subscription history", err)
		}
		h.RecordedAt = time.Unix(recordedAt, 0).UTC()
		entries = append(entries, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.NewStorageError("list subscription history", err)
	}
	return entries, nil
}

func (s *subscriptionStore) Stats(ctx context.Context) (*models.SubscriptionStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.status, COUNT(*),
			COALESCE(SUM(CASE WHEN s.status IN ('active', 'past_due') THEN p.price_monthly ELSE 0 END), 0)
		FROM subscriptions s
		JOIN plans p ON p.slug = s.plan_slug
		GROUP BY s.status`)
	if err != nil {
		return nil, apierrors.NewStorageError("subscription stats", err)
	}
	defer rows.Close()

	stats := repository.NewStats()
	for rows.Next() {
		var (
			status     models.SubscriptionStatus
			count, mrr int64
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

func appendHistory(ctx context.Context, db execer, customerID, planSlug string, status models.SubscriptionStatus) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO subscription_history (id, customer_id, plan_slug, status, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		ulid.NewFromTime(now), customerID, planSlug, string(status), now.Unix())
	if err != nil {
		return apierrors.NewStorageError("append subscription history", err)
	}
	return nil
}

func scanSubscription(row scanner) (*models.Subscription, error) {
	var (
		s                                      models.Subscription
		id                                     string
		periodStart, periodEnd                 sql.NullInt64
		canceledAt, endedAt, trialEnd          sql.NullInt64
		providerCustomer, providerSubscription sql.NullString
		createdAt, updatedAt                   int64
	)
	if err := row.Scan(
		&id,
		&s.CustomerID,
		&s.PlanSlug,
		&s.Status,
		&periodStart,
		&periodEnd,
		&s.CancelAtPeriodEnd,
		&canceledAt,
		&endedAt,
		&trialEnd,
		&providerCustomer,
		&providerSubscription,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	s.ID = parsed
	s.CurrentPeriodStart = fromUnix(periodStart)
	s.CurrentPeriodEnd = fromUnix(periodEnd)
	s.CanceledAt = fromUnix(canceledAt)
	s.EndedAt = fromUnix(endedAt)
	s.TrialEnd = fromUnix(trialEnd)
	s.ProviderCustomerID = nullString(providerCustomer)
	s.ProviderSubscriptionID = nullString(providerSubscription)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &s, nil
}

var _ repository.SubscriptionRepository = (*subscriptionStore)(nil)
