package quota

// PlanType identifies a paid subscription tier.
type PlanType string

const (
	PlanBasic PlanType = "basic"
	PlanPro   PlanType = "pro"

	// PlanNone represents the absence of a subscription.
	PlanNone PlanType = ""
)

// Feature represents a metered feature that counts against a plan quota.
type Feature string

const (
	FeatureContentGeneration Feature = "content_generation"
	FeatureProfileAnalysis   Feature = "profile_analysis"
)

const (
	// Unlimited indicates no limit for a feature (-1 chosen for SQL compatibility).
	Unlimited int64 = -1

	// NoAccess indicates the feature is not available at all.
	NoAccess int64 = 0
)

// Features returns all metered features.
func Features() []Feature {
	return []Feature{FeatureContentGeneration, FeatureProfileAnalysis}
}
