package quota_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlement/pkg/quota"
)

func TestResolver_Limit(t *testing.T) {
	t.Parallel()

	resolver := quota.MustNewResolver(quota.DefaultCatalog())

	tests := []struct {
		name    string
		plan    quota.PlanType
		feature quota.Feature
		inTrial bool
		want    int64
	}{
		{"basic content generation", quota.PlanBasic, quota.FeatureContentGeneration, false, 10},
		{"basic profile analysis", quota.PlanBasic, quota.FeatureProfileAnalysis, false, 3},
		{"pro content generation is unlimited", quota.PlanPro, quota.FeatureContentGeneration, false, quota.Unlimited},
		{"pro profile analysis", quota.PlanPro, quota.FeatureProfileAnalysis, false, 30},
		{"trialing subscription uses plan limits", quota.PlanBasic, quota.FeatureContentGeneration, true, 10},
		{"no plan in trial gets trial allowance", quota.PlanNone, quota.FeatureContentGeneration, true, 3},
		{"no plan in trial gets trial allowance for analysis", quota.PlanNone, quota.FeatureProfileAnalysis, true, 3},
		{"no plan no trial has no access", quota.PlanNone, quota.FeatureContentGeneration, false, quota.NoAccess},
		{"unknown plan fails closed", quota.PlanType("enterprise"), quota.FeatureContentGeneration, false, quota.NoAccess},
		{"unknown feature fails closed", quota.PlanPro, quota.Feature("video_rendering"), false, quota.NoAccess},
		{"unknown feature fails closed in trial", quota.PlanNone, quota.Feature("video_rendering"), true, quota.NoAccess},
		{"unknown plan fails closed even in trial", quota.PlanType("enterprise"), quota.FeatureProfileAnalysis, true, quota.NoAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, resolver.Limit(tt.plan, tt.feature, tt.inTrial))
		})
	}
}

func TestResolver_Deterministic(t *testing.T) {
	t.Parallel()

	resolver := quota.MustNewResolver(quota.DefaultCatalog())

	first := resolver.Limit(quota.PlanBasic, quota.FeatureContentGeneration, false)
	for range 100 {
		assert.Equal(t, first, resolver.Limit(quota.PlanBasic, quota.FeatureContentGeneration, false))
	}
}

func TestResolver_CatalogIsolation(t *testing.T) {
	t.Parallel()

	catalog := quota.DefaultCatalog()
	resolver, err := quota.NewResolver(catalog)
	require.NoError(t, err)

	// Mutating the caller's catalog must not leak into the resolver.
	catalog.Plans[quota.PlanBasic][quota.FeatureContentGeneration] = 999
	catalog.Trial[quota.FeatureContentGeneration] = 999

	assert.Equal(t, int64(10), resolver.Limit(quota.PlanBasic, quota.FeatureContentGeneration, false))
	assert.Equal(t, int64(3), resolver.Limit(quota.PlanNone, quota.FeatureContentGeneration, true))
}

func TestNewResolver_InvalidCatalog(t *testing.T) {
	t.Parallel()

	t.Run("negative plan limit", func(t *testing.T) {
		t.Parallel()
		catalog := quota.DefaultCatalog()
		catalog.Plans[quota.PlanBasic][quota.FeatureContentGeneration] = -2

		_, err := quota.NewResolver(catalog)
		require.ErrorIs(t, err, quota.ErrInvalidCatalog)
	})

	t.Run("negative trial limit", func(t *testing.T) {
		t.Parallel()
		catalog := quota.DefaultCatalog()
		catalog.Trial[quota.FeatureProfileAnalysis] = -5

		_, err := quota.NewResolver(catalog)
		require.ErrorIs(t, err, quota.ErrInvalidCatalog)
	})
}
