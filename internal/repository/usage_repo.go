package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
)

type usageRepo struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a new usage counter repository.
func NewUsageRepository(pool *pgxpool.Pool) UsageRepository {
	return &usageRepo{pool: pool}
}

// Get returns the counter for one feature and period.
func (r *usageRepo) Get(ctx context.Context, customerID string, feature models.Feature, periodKey string) (int64, error) {
	query := `
		SELECT count FROM usage_counters
		WHERE customer_id = $1 AND feature = $2 AND period_key = $3`

	var count int64
	err := r.pool.QueryRow(ctx, query, customerID, feature, periodKey).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apierrors.NewStorageError("get usage", err)
	}
	return count, nil
}

// Increment adds amount to the counter and returns the new total.
// Uses INSERT ... ON CONFLICT for atomic upsert.
func (r *usageRepo) Increment(ctx context.Context, customerID string, feature models.Feature, periodKey string, amount int64) (int64, error) {
	if err := ValidateIncrement(amount); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO usage_counters (customer_id, feature, period_key, count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_id, feature, period_key)
		DO UPDATE SET count = usage_counters.count + EXCLUDED.count, updated_at = NOW()
		RETURNING count`

	var count int64
	if err := r.pool.QueryRow(ctx, query, customerID, feature, periodKey, amount).Scan(&count); err != nil {
		return 0, apierrors.NewStorageError("increment usage", err)
	}
	return count, nil
}

// ListForPeriod returns every counter of a customer in one period.
func (r *usageRepo) ListForPeriod(ctx context.Context, customerID, periodKey string) (map[models.Feature]int64, error) {
	query := `
		SELECT feature, count FROM usage_counters
		WHERE customer_id = $1 AND period_key = $2`

	rows, err := r.pool.Query(ctx, query, customerID, periodKey)
	if err != nil {
		return nil, apierrors.NewStorageError("list usage", err)
	}
	defer rows.Close()

	usage := make(map[models.Feature]int64)
	for rows.Next() {
		var (
			feature models.Feature
			count   int64
		)
		if err := rows.Scan(&feature, &count); err != nil {
			return nil, apierrors.NewStorageError("scan usage", err)
		}
		usage[feature] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.NewStorageError("list usage", err)
	}
	return usage, nil
}

// Compile-time check to ensure usageRepo implements UsageRepository.
var _ UsageRepository = (*usageRepo)(nil)
