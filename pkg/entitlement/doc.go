// Package entitlement answers "may this user use this feature right now"
// and records metered usage against per-plan quotas.
//
// It is the façade over three collaborators: the billing subscription store
// (who has which plan, in what state), the quota resolver (what each plan
// allows per billing period) and the usage ledger (how much has been used
// this period). Handlers call RecordUse before performing a metered
// operation; denial comes back as ErrNoAccess or ErrUsageLimitExceeded so
// the UI can distinguish "upgrade your plan" from "you ran out this month".
//
// Users without a subscription can still be entitled through a signup
// trial, supplied as a TrialChecker predicate since account data lives
// outside this package.
//
//	svc := entitlement.NewService(store, ledger, resolver,
//		entitlement.WithTrialChecker(trial),
//		entitlement.WithProvider(stripe),
//	)
//
//	count, err := svc.RecordUse(ctx, userID, quota.FeatureContentGeneration)
package entitlement
