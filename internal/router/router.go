package router

import (
	"fmt"

	"careerpilot/internal/plans"
	"careerpilot/internal/pricing"
)

// ModelTier holds the model choices for one feature. Economy is mandatory;
// Premium is optional and only reachable from the top plan.
type ModelTier struct {
	Economy string
	Premium string
}

// defaultTiers is the shipped routing table.
var defaultTiers = map[string]ModelTier{
	plans.FeatureJobMatch:      {Economy: "gpt-4o-mini", Premium: "gpt-4o"},
	plans.FeatureRecruiterLens: {Economy: "gpt-4o-mini"},
	plans.FeatureInterviewPack: {Economy: "gpt-4o-mini", Premium: "gpt-4o"},
	plans.FeatureOutreach:      {Economy: "gpt-4o-mini"},
}

// Router is a pure (feature, plan) -> model policy. It is total after New
// succeeds: every supported feature has a defined model.
type Router struct {
	tiers map[string]ModelTier
}

// New builds a router from the default table.
func New() (*Router, error) {
	return NewWithTiers(defaultTiers)
}

// NewWithTiers builds a router from an explicit table, validating that
// every supported feature is covered and every named model is priced.
// A hole in the table is a configuration error raised here, not at call
// time.
func NewWithTiers(tiers map[string]ModelTier) (*Router, error) {
	for _, feature := range plans.Features {
		tier, ok := tiers[feature]
		if !ok {
			return nil, fmt.Errorf("router: no model tier configured for feature %q", feature)
		}
		if tier.Economy == "" {
			return nil, fmt.Errorf("router: feature %q has no economy model", feature)
		}
		if !pricing.Known(tier.Economy) {
			return nil, fmt.Errorf("router: economy model %q for feature %q has no pricing entry", tier.Economy, feature)
		}
		if tier.Premium != "" && !pricing.Known(tier.Premium) {
			return nil, fmt.Errorf("router: premium model %q for feature %q has no pricing entry", tier.Premium, feature)
		}
	}

	copied := make(map[string]ModelTier, len(tiers))
	for feature, tier := range tiers {
		copied[feature] = tier
	}
	return &Router{tiers: copied}, nil
}

// Route returns the model for a feature under a plan. Entry and mid plans
// always get the economy model; the top plan gets the premium model when
// the feature defines one.
func (r *Router) Route(feature string, plan plans.Plan) string {
	tier := r.tiers[feature]
	if plan == plans.PlanElite && tier.Premium != "" {
		return tier.Premium
	}
	return tier.Economy
}
