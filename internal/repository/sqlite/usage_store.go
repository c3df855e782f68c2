package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

type usageStore struct {
	db *sql.DB
}

// NewUsageRepository creates a usage counter repository on db.
func NewUsageRepository(db *sql.DB) repository.UsageRepository {
	return &usageStore{db: db}
}

func (s *usageStore) Get(ctx context.Context, customerID string, feature models.Feature, periodKey string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM usage_counters WHERE customer_id = ? AND feature = ? AND period_key = ?`,
		customerID, string(feature), periodKey,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apierrors.NewStorageError("get usage", err)
	}
	return count, nil
}

func (s *usageStore) Increment(ctx context.Context, customerID string, feature models.Feature, periodKey string, amount int64) (int64, error) {
	if err := repository.ValidateIncrement(amount); err != nil {
		return 0, err
	}

	var count int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (customer_id, feature, period_key, count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (customer_id, feature, period_key)
		DO UPDATE SET count = usage_counters.count + excluded.count, updated_at = excluded.updated_at
		RETURNING count`,
		customerID, string(feature), periodKey, amount, nowUnix(),
	).Scan(&count)
	if err != nil {
		return 0, apierrors.NewStorageError("increment usage", err)
	}
	return count, nil
}

func (s *usageStore) ListForPeriod(ctx context.Context, customerID, periodKey string) (map[models.Feature]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feature, count FROM usage_counters WHERE customer_id = ? AND period_key = ?`,
		customerID, periodKey)
	if err != nil {
		return nil, apierrors.NewStorageError("list usage", err)
	}
	defer rows.Close()

	usage := make(map[models.Feature]int64)
	for rows.Next() {
		var (
			feature string
			count   int64
		)
		if err := rows.Scan(&feature, &count); err != nil {
			return nil, apierrors.NewStorageError("scan usage", err)
		}
		usage[models.Feature(feature)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.NewStorageError("list usage", err)
	}
	return usage, nil
}

var _ repository.UsageRepository = (*usageStore)(nil)
