package pricing

// Per-model token pricing in USD per 1M tokens. Prices as of mid 2025.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

var modelPricing = map[string]ModelPricing{
	"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4":       {InputPer1M: 30.00, OutputPer1M: 60.00},
}

// Estimate converts token counts into an estimated USD cost for a model.
// Unknown models fail closed: ok is false and no cost is reported, so a run
// is never silently under-billed with a guessed rate.
func Estimate(model string, promptTokens, completionTokens int) (cost float64, ok bool) {
	p, found := modelPricing[model]
	if !found {
		return 0, false
	}
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	inputCost := float64(promptTokens) / 1_000_000 * p.InputPer1M
	outputCost := float64(completionTokens) / 1_000_000 * p.OutputPer1M
	return inputCost + outputCost, true
}

// Known reports whether a model has a pricing entry. The router validates
// its table against this at startup.
func Known(model string) bool {
	_, ok := modelPricing[model]
	return ok
}
