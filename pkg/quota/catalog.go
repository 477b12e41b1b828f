package quota

import (
	"errors"
	"fmt"
	"maps"
)

// Catalog holds the per-plan feature limits and the signup-trial allowance.
// It is the single place plan economics are encoded.
type Catalog struct {
	// Plans maps each plan to its per-feature limits.
	// A limit of Unlimited (-1) means no cap, 0 means no access.
	Plans map[PlanType]map[Feature]int64

	// Trial is the per-feature allowance for users without a subscription
	// who are still inside their signup trial window.
	Trial map[Feature]int64
}

// DefaultCatalog returns the built-in plan economics.
// Deployments that need different numbers load a catalog from YAML instead.
func DefaultCatalog() Catalog {
	return Catalog{
		Plans: map[PlanType]map[Feature]int64{
			PlanBasic: {
				FeatureContentGeneration: 10,
				FeatureProfileAnalysis:   3,
			},
			PlanPro: {
				FeatureContentGeneration: Unlimited,
				FeatureProfileAnalysis:   30,
			},
		},
		Trial: map[Feature]int64{
			FeatureContentGeneration: 3,
			FeatureProfileAnalysis:   3,
		},
	}
}

// Clone returns a deep copy of the catalog so callers cannot mutate
// the resolver's view of plan economics after construction.
func (c Catalog) Clone() Catalog {
	plans := make(map[PlanType]map[Feature]int64, len(c.Plans))
	for plan, limits := range c.Plans {
		plans[plan] = maps.Clone(limits)
	}
	return Catalog{
		Plans: plans,
		Trial: maps.Clone(c.Trial),
	}
}

// Validate checks the catalog for limits that are neither non-negative
// nor the Unlimited sentinel.
func (c Catalog) Validate() error {
	for plan, limits := range c.Plans {
		for feature, limit := range limits {
			if limit < Unlimited {
				return errors.Join(ErrInvalidCatalog,
					fmt.Errorf("plan %q feature %q has invalid limit %d", plan, feature, limit))
			}
		}
	}
	for feature, limit := range c.Trial {
		if limit < Unlimited {
			return errors.Join(ErrInvalidCatalog,
				fmt.Errorf("trial feature %q has invalid limit %d", feature, limit))
		}
	}
	return nil
}
