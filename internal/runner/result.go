package runner

import (
	"time"

	"github.com/google/uuid"

	"careerpilot/internal/models"
	"careerpilot/internal/quota"
)

// Payload is the structured output every feature prompt asks the model for.
// When the model answer cannot be parsed as JSON the raw text is wrapped
// into Content and the run is marked degraded.
type Payload struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Content       string   `json:"content"`
	Bullets       []string `json:"bullets,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	KeywordsAdded []string `json:"keywords_added,omitempty"`
	NextActions   []string `json:"next_actions,omitempty"`
}

// Result is the terminal outcome of one run.
type Result struct {
	RunID            uuid.UUID
	Status           models.RunStatus
	Model            string
	PromptVersion    string
	PromptTokens     int
	CompletionTokens int
	// CostUSD is nil when the model has no pricing entry.
	CostUSD  *float64
	Degraded bool
	Payload  *Payload
	Duration time.Duration
	Quota    quota.Decision
}
