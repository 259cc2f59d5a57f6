package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"careerpilot/internal/models"
	"careerpilot/internal/storage"
)

type runSummary struct {
	ID               string     `json:"id"`
	Feature          string     `json:"feature"`
	Model            string     `json:"model"`
	PromptVersion    string     `json:"prompt_version"`
	Status           string     `json:"status"`
	ErrorKind        string     `json:"error_kind,omitempty"`
	Degraded         bool       `json:"degraded"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
	CostUSD          *float64   `json:"cost_usd,omitempty"`
	DurationMS       int64      `json:"duration_ms"`
	CreatedAt        time.Time  `json:"created_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// handleRuns serves GET /v1/runs (the caller's recent run history) and
// GET /v1/runs/{id}. Runs belong to their caller: someone else's run ID
// answers 404, not 403, so IDs are not probeable.
func (d *Dependencies) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, err := callerID(r)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/runs"), "/")
	if rest == "" {
		d.listRuns(w, r, userID)
		return
	}
	d.getRun(w, r, userID, rest)
}

func (d *Dependencies) listRuns(w http.ResponseWriter, r *http.Request, userID int64) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			writeJSONError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	runs, err := d.Runs.ListByUser(r.Context(), userID, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	summaries := make([]runSummary, 0, len(runs))
	for i := range runs {
		summaries = append(summaries, toRunSummary(&runs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

func (d *Dependencies) getRun(w http.ResponseWriter, r *http.Request, userID int64, rawID string) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "run not found")
		return
	}

	run, err := d.Runs.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		writeJSONError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if run.UserID != userID {
		writeJSONError(w, http.StatusNotFound, "run not found")
		return
	}

	writeJSON(w, http.StatusOK, toRunSummary(run))
}

func toRunSummary(run *models.Run) runSummary {
	summary := runSummary{
		ID:               run.ID.String(),
		Feature:          run.Feature,
		Model:            run.Model,
		PromptVersion:    run.PromptVersion,
		Status:           string(run.Status),
		Degraded:         run.Degraded,
		PromptTokens:     run.PromptTokens,
		CompletionTokens: run.CompletionTokens,
		CostUSD:          run.CostUSD,
		DurationMS:       run.DurationMS,
		CreatedAt:        run.CreatedAt,
		FinishedAt:       run.FinishedAt,
	}
	if run.ErrorKind != nil {
		summary.ErrorKind = *run.ErrorKind
	}
	return summary
}
