package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an orchestration run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the audit record of a single orchestration attempt. One row is
// written per attempt that reaches the provider gate; rows are finalized
// exactly once and never mutated afterwards.
type Run struct {
	ID               uuid.UUID `db:"id"`
	UserID           int64     `db:"user_id"`
	Feature          string    `db:"feature"`
	Model            string    `db:"model"`
	PromptVersion    string    `db:"prompt_version"`
	PromptTokens     int       `db:"prompt_tokens"`
	CompletionTokens int       `db:"completion_tokens"`
	// CostUSD is nil when the model is missing from the pricing table so a
	// run is never silently under-billed.
	CostUSD    *float64   `db:"cost_usd"`
	Status     RunStatus  `db:"status"`
	ErrorKind  *string    `db:"error_kind"`
	Degraded   bool       `db:"degraded"`
	DurationMS int64      `db:"duration_ms"`
	CreatedAt  time.Time  `db:"created_at"`
	FinishedAt *time.Time `db:"finished_at"`
}
