package plans

// Plan is a subscription tier controlling per-feature quota limits and
// model access.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanPro   Plan = "pro"
	PlanElite Plan = "elite"
)

// LLM-backed features. Each has its own prompt template, model tiering and
// monthly quota limit.
const (
	FeatureJobMatch      = "job_match"
	FeatureRecruiterLens = "recruiter_lens"
	FeatureInterviewPack = "interview_pack"
	FeatureOutreach      = "outreach"
)

// Features lists every supported feature name.
var Features = []string{
	FeatureJobMatch,
	FeatureRecruiterLens,
	FeatureInterviewPack,
	FeatureOutreach,
}

// Unlimited marks a feature with no monthly cap for a plan.
const Unlimited = -1

// planLimits is the single source of truth for monthly quota limits.
var planLimits = map[Plan]map[string]int{
	PlanFree: {
		FeatureJobMatch:      5,
		FeatureRecruiterLens: 3,
		FeatureInterviewPack: 2,
		FeatureOutreach:      3,
	},
	PlanPro: {
		FeatureJobMatch:      25,
		FeatureRecruiterLens: 20,
		FeatureInterviewPack: 15,
		FeatureOutreach:      30,
	},
	PlanElite: {
		FeatureJobMatch:      Unlimited,
		FeatureRecruiterLens: Unlimited,
		FeatureInterviewPack: Unlimited,
		FeatureOutreach:      Unlimited,
	},
}

// Normalize maps arbitrary plan strings onto a known tier, defaulting to
// the lowest tier. An unknown plan must never fail open to unlimited.
func Normalize(plan string) Plan {
	switch Plan(plan) {
	case PlanPro:
		return PlanPro
	case PlanElite:
		return PlanElite
	default:
		return PlanFree
	}
}

// Limit returns the monthly limit for a feature under a plan.
// Unlimited (-1) means no cap. Unknown features get a zero limit on finite
// plans so a misconfigured caller cannot spend quota that was never priced.
func Limit(plan Plan, feature string) int {
	limits, ok := planLimits[plan]
	if !ok {
		limits = planLimits[PlanFree]
	}
	limit, ok := limits[feature]
	if !ok {
		return 0
	}
	return limit
}

// IsSupported reports whether feature is a known feature name.
func IsSupported(feature string) bool {
	for _, f := range Features {
		if f == feature {
			return true
		}
	}
	return false
}

// AllLimits returns the full limit table for a plan, keyed by feature.
func AllLimits(plan Plan) map[string]int {
	limits, ok := planLimits[plan]
	if !ok {
		limits = planLimits[PlanFree]
	}
	out := make(map[string]int, len(limits))
	for feature, limit := range limits {
		out[feature] = limit
	}
	return out
}
