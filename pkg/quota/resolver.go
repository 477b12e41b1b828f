package quota

// Resolver answers "how many uses of feature F does this plan allow per
// billing period". It is a total, deterministic function: every input maps
// to a limit and unknown plans or features fail closed with NoAccess.
type Resolver struct {
	catalog Catalog
}

// NewResolver builds a Resolver from the given catalog.
// The catalog is deep-copied; later mutations by the caller have no effect.
func NewResolver(catalog Catalog) (*Resolver, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{catalog: catalog.Clone()}, nil
}

// MustNewResolver is NewResolver that panics on an invalid catalog.
// Intended for the built-in DefaultCatalog during initialization.
func MustNewResolver(catalog Catalog) *Resolver {
	r, err := NewResolver(catalog)
	if err != nil {
		panic(err)
	}
	return r
}

// Limit resolves the per-period limit for (plan, feature, inTrial).
//
//   - A known plan returns its configured limit for the feature, whether or
//     not the subscription is trialing: trial subscriptions use plan limits.
//   - PlanNone with inTrial=true returns the signup-trial allowance.
//   - PlanNone without a trial returns NoAccess.
//   - Unknown plans or features return NoAccess (fail closed).
func (r *Resolver) Limit(plan PlanType, feature Feature, inTrial bool) int64 {
	if plan == PlanNone {
		if !inTrial {
			return NoAccess
		}
		if limit, ok := r.catalog.Trial[feature]; ok {
			return limit
		}
		return NoAccess
	}

	limits, ok := r.catalog.Plans[plan]
	if !ok {
		return NoAccess
	}
	limit, ok := limits[feature]
	if !ok {
		return NoAccess
	}
	return limit
}
