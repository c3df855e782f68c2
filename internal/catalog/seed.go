package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

// SeedFile is the on-disk layout of a plan catalog.
type SeedFile struct {
	Plans []models.Plan `yaml:"plans"`
}

// LoadSeedFile reads plans from a YAML file.
func LoadSeedFile(path string) ([]models.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return seed.Plans, nil
}

// ValidatePlans checks a full catalog before it is written: struct tags,
// known feature names, unique slugs and price ids, and exactly one free
// plan whose limits are all finite.
func ValidatePlans(plans []models.Plan) error {
	validate := validator.New()

	var (
		errs   []string
		free   int
		slugs  = make(map[string]bool)
		prices = make(map[string]string)
	)

	for i := range plans {
		p := &plans[i]
		if err := validate.Struct(p); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					errs = append(errs, fmt.Sprintf("plan %q: %s failed %s", p.Slug, fe.Namespace(), fe.Tag()))
				}
			} else {
				errs = append(errs, fmt.Sprintf("plan %q: %v", p.Slug, err))
			}
		}

		if slugs[p.Slug] {
			errs = append(errs, fmt.Sprintf("plan %q: duplicate slug", p.Slug))
		}
		slugs[p.Slug] = true

		for f := range p.Limits {
			if !f.Valid() {
				errs = append(errs, fmt.Sprintf("plan %q: unknown feature %q", p.Slug, f))
			}
		}

		for _, ref := range []*string{p.StripePriceMonthly, p.StripePriceAnnual} {
			if ref == nil || *ref == "" {
				continue
			}
			if owner, ok := prices[*ref]; ok {
				errs = append(errs, fmt.Sprintf("plan %q: price %q already used by %q", p.Slug, *ref, owner))
			}
			prices[*ref] = p.Slug
		}

		if p.IsFree() {
			free++
			for f, limit := range p.Limits {
				if limit < 0 {
					errs = append(errs, fmt.Sprintf("plan %q: limit for %s must be finite", p.Slug, f))
				}
			}
		}
	}

	if free != 1 {
		errs = append(errs, fmt.Sprintf("catalog must contain exactly one %q plan, found %d", models.FreePlanSlug, free))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid plan catalog: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Seed validates plans and writes them through repo. Plans missing from the
// file are left untouched; deactivate them instead of deleting.
func Seed(ctx context.Context, repo repository.PlanRepository, plans []models.Plan) error {
	if err := ValidatePlans(plans); err != nil {
		return err
	}
	for i := range plans {
		if err := repo.Upsert(ctx, &plans[i]); err != nil {
			return fmt.Errorf("seed plan %q: %w", plans[i].Slug, err)
		}
	}
	return nil
}
