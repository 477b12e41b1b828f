// Package quota encodes plan economics: which features each subscription
// plan may use and how many times per billing period.
//
// The Resolver is a pure function over a Catalog. It never errors and never
// touches storage, so callers can consult it on every request without
// caching concerns. All unknown inputs resolve to NoAccess.
//
// # Usage
//
//	resolver := quota.MustNewResolver(quota.DefaultCatalog())
//
//	limit := resolver.Limit(quota.PlanPro, quota.FeatureProfileAnalysis, false)
//	// limit == 30
//
// Deployments that tune limits without a rebuild can load the catalog from
// a YAML file:
//
//	catalog, err := quota.NewFileSource("config/plans.yaml").Load(ctx)
//	if err != nil {
//	    // handle error
//	}
//	resolver, err := quota.NewResolver(catalog)
package quota
