package httpapi

import (
	"net/http"

	"careerpilot/internal/models"
	"careerpilot/internal/plans"
)

type usageResponse struct {
	Plan     string             `json:"plan"`
	Month    string             `json:"month"`
	Features map[string]aiUsage `json:"features"`
}

// handleUsage serves GET /v1/usage: the caller's consumption against every
// feature limit for the current month.
func (d *Dependencies) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, err := callerID(r)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
		return
	}

	ctx := r.Context()
	resp := usageResponse{
		Plan:     string(d.Plans.PlanFor(ctx, userID)),
		Month:    models.CurrentMonthKey(),
		Features: make(map[string]aiUsage, len(plans.Features)),
	}

	for _, feature := range plans.Features {
		decision, err := d.Usage.Usage(ctx, userID, feature)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		resp.Features[feature] = aiUsage{
			Used:      decision.Used,
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			Unbounded: decision.Unbounded,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
