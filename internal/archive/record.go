package archive

import (
	"time"

	"careerpilot/internal/models"
)

// Record is the flattened run shape written to the archive. It mirrors the
// runs table closely enough for offline analytics without exposing prompt
// text.
type Record struct {
	RunID            string    `json:"run_id"`
	UserID           int64     `json:"user_id"`
	Feature          string    `json:"feature"`
	Model            string    `json:"model"`
	PromptVersion    string    `json:"prompt_version"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          *float64  `json:"cost_usd,omitempty"`
	Status           string    `json:"status"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	Degraded         bool      `json:"degraded"`
	DurationMS       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// FromRun converts a finalized run into an archive record.
func FromRun(run *models.Run) Record {
	rec := Record{
		RunID:            run.ID.String(),
		UserID:           run.UserID,
		Feature:          run.Feature,
		Model:            run.Model,
		PromptVersion:    run.PromptVersion,
		PromptTokens:     run.PromptTokens,
		CompletionTokens: run.CompletionTokens,
		CostUSD:          run.CostUSD,
		Status:           string(run.Status),
		Degraded:         run.Degraded,
		DurationMS:       run.DurationMS,
		CreatedAt:        run.CreatedAt,
	}
	if run.ErrorKind != nil {
		rec.ErrorKind = *run.ErrorKind
	}
	return rec
}
