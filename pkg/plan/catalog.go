package plan

import (
	"context"
	"errors"
	"fmt"
)

// Source loads the plan catalog. Implementations must return every plan
// keyed by its ID; validation happens in NewCatalog.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Catalog is the validated, immutable set of sellable plans. It is built
// once at startup; catalog changes are a deploy, not a runtime mutation.
type Catalog struct {
	plans map[string]Plan
}

// NewCatalog loads and validates plans from src.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plan: Source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	if err := validate(plans); err != nil {
		return nil, err
	}

	return &Catalog{plans: plans}, nil
}

// Get returns the plan with the given ID.
func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// ByFeature returns all active plans selling the given feature, the set a
// storefront page or a switch picker offers.
func (c *Catalog) ByFeature(featureKey string) []Plan {
	var out []Plan
	for _, p := range c.plans {
		if p.FeatureKey == featureKey && p.Active {
			out = append(out, p)
		}
	}
	return out
}

// All returns every plan in the catalog.
func (c *Catalog) All() map[string]Plan {
	out := make(map[string]Plan, len(c.plans))
	for id, p := range c.plans {
		out[id] = p
	}
	return out
}

func validate(plans map[string]Plan) error {
	for id, p := range plans {
		if p.ID != id {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan map key %q != plan.ID %q", id, p.ID))
		}
		if p.FeatureKey == "" {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %q has no feature key", id))
		}
		if p.Kind != BillingOneTime && p.Kind != BillingRecurring {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %q has unknown billing kind %q", id, p.Kind))
		}
		if p.Price.Amount < 0 {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %q has negative price", id))
		}
		if p.RequestsPerDay != nil && *p.RequestsPerDay <= 0 {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %q has non-positive daily quota", id))
		}
		if p.RequestsPerMonth != nil && *p.RequestsPerMonth <= 0 {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %q has non-positive monthly quota", id))
		}
		if p.ActivationLimit != nil && *p.ActivationLimit <= 0 {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %q has non-positive activation limit", id))
		}
		if p.IsRecurring() && p.IsLifetime() {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %q cannot be both recurring and lifetime", id))
		}
	}
	return nil
}
