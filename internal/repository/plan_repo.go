package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
)

type planRepo struct {
	pool *pgxpool.Pool
}

// NewPlanRepository creates a new plan repository.
func NewPlanRepository(pool *pgxpool.Pool) PlanRepository {
	return &planRepo{pool: pool}
}

const planColumns = `slug, name, price_monthly, price_annual, stripe_price_monthly, stripe_price_annual,
		limits, is_active, sort_order, created_at, updated_at`

// GetBySlug retrieves a plan by slug.
func (r *planRepo) GetBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE slug = $1`

	plan, err := scanPlan(r.pool.QueryRow(ctx, query, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.NewStorageError("get plan", err)
	}
	return plan, nil
}

// GetByPriceReference retrieves the plan carrying a monthly or annual price id.
func (r *planRepo) GetByPriceReference(ctx context.Context, priceID string) (*models.Plan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM plans
		WHERE stripe_price_monthly = $1 OR stripe_price_annual = $1
		LIMIT 1`

	plan, err := scanPlan(r.pool.QueryRow(ctx, query, priceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.NewStorageError("get plan by price", err)
	}
	return plan, nil
}

// List returns plans ordered for display.
func (r *planRepo) List(ctx context.Context, activeOnly bool) ([]*models.Plan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM plans
		WHERE ($1 = FALSE OR is_active)
		ORDER BY sort_order, slug`

	rows, err := r.pool.Query(ctx, query, activeOnly)
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

// Upsert creates or replaces a plan by slug.
func (r *planRepo) Upsert(ctx context.Context, plan *models.Plan) error {
	limits, err := json.Marshal(plan.Limits)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO plans (slug, name, price_monthly, price_annual, stripe_price_monthly, stripe_price_annual,
			limits, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			price_monthly = EXCLUDED.price_monthly,
			price_annual = EXCLUDED.price_annual,
			stripe_price_monthly = EXCLUDED.stripe_price_monthly,
			stripe_price_annual = EXCLUDED.stripe_price_annual,
			limits = EXCLUDED.limits,
			is_active = EXCLUDED.is_active,
			sort_order = EXCLUDED.sort_order,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		plan.Slug,
		plan.Name,
		plan.PriceMonthly,
		plan.PriceAnnual,
		plan.StripePriceMonthly,
		plan.StripePriceAnnual,
		string(limits),
		plan.IsActive,
		plan.SortOrder,
	).Scan(&plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return apierrors.NewStorageError("upsert plan", err)
	}
	return nil
}

func scanPlan(row pgx.Row) (*models.Plan, error) {
	var (
		p      models.Plan
		limits []byte
	)
	if err := row.Scan(
		&p.Slug,
		&p.Name,
		&p.PriceMonthly,
		&p.PriceAnnual,
		&p.StripePriceMonthly,
		&p.StripePriceAnnual,
		&limits,
		&p.IsActive,
		&p.SortOrder,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(limits, &p.Limits); err != nil {
		return nil, err
	}
	return &p, nil
}

// Compile-time check to ensure planRepo implements PlanRepository.
var _ PlanRepository = (*planRepo)(nil)
