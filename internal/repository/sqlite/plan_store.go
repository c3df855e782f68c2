package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

type planStore struct {
	db *sql.DB
}

// NewPlanRepository creates a plan repository on db.
func NewPlanRepository(db *sql.DB) repository.PlanRepository {
	return &planStore{db: db}
}

const planColumns = `slug, name, price_monthly, price_annual, stripe_price_monthly, stripe_price_annual,
	limits, is_active, sort_order, created_at, updated_at`

func (s *planStore) GetBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE slug = ?`, slug)
	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.NewStorageError("get plan", err)
	}
	return plan, nil
}

func (s *planStore) GetByPriceReference(ctx context.Context, priceID string) (*models.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE stripe_price_monthly = ? OR stripe_price_annual = ? LIMIT 1`,
		priceID, priceID)
	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.NewStorageError("get plan by price", err)
	}
	return plan, nil
}

func (s *planStore) List(ctx context.Context, activeOnly bool) ([]*models.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE (? = 0 OR is_active = 1) ORDER BY sort_order, slug`,
		boolInt(activeOnly))
	if err != nil {
		return nil, apierrors.NewStorageError("list plans", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, apierrors.NewStorageError("scan plan", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.NewStorageError("list plans", err)
	}
	return plans, nil
}

func (s *planStore) Upsert(ctx context.Context, plan *models.Plan) error {
	limits, err := json.Marshal(plan.Limits)
	if err != nil {
		return err
	}
	now := nowUnix()

	var createdAt, updatedAt int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO plans (slug, name, price_monthly, price_annual, stripe_price_monthly, stripe_price_annual,
			limits, is_active, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			price_monthly = excluded.price_monthly,
			price_annual = excluded.price_annual,
			stripe_price_monthly = excluded.stripe_price_monthly,
			stripe_price_annual = excluded.stripe_price_annual,
			limits = excluded.limits,
			is_active = excluded.is_active,
			sort_order = excluded.sort_order,
			updated_at = excluded.updated_at
		RETURNING created_at, updated_at`,
		plan.Slug, plan.Name, plan.PriceMonthly, plan.PriceAnnual,
		optString(plan.StripePriceMonthly), optString(plan.StripePriceAnnual),
		string(limits), boolInt(plan.IsActive), plan.SortOrder, now, now,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		return apierrors.NewStorageError("upsert plan", err)
	}
	plan.CreatedAt = time.Unix(createdAt, 0).UTC()
	plan.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return nil
}

func scanPlan(row scanner) (*models.Plan, error) {
	var (
		p                    models.Plan
		monthly, annual      sql.NullString
		limits               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&p.Slug,
		&p.Name,
		&p.PriceMonthly,
		&p.PriceAnnual,
		&monthly,
		&annual,
		&limits,
		&p.IsActive,
		&p.SortOrder,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(limits), &p.Limits); err != nil {
		return nil, err
	}
	p.StripePriceMonthly = nullString(monthly)
	p.StripePriceAnnual = nullString(annual)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

var _ repository.PlanRepository = (*planStore)(nil)
