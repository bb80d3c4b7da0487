// Package cost estimates the dollar cost of language-model usage from token
// counts. Prices are per million tokens and are approximations for telemetry,
// not billing.
package cost

import "strings"

// ModelPricing holds per-million-token prices in USD.
type ModelPricing struct {
	PromptPerMillion     float64
	CompletionPerMillion float64
}

// CostCalculator estimates request cost from token usage.
type CostCalculator struct {
	pricing map[string]ModelPricing
}

// NewCostCalculator creates a calculator seeded with known model prices.
func NewCostCalculator() *CostCalculator {
	return &CostCalculator{
		pricing: map[string]ModelPricing{
			"gpt-4o":            {PromptPerMillion: 2.50, CompletionPerMillion: 10.00},
			"gpt-4o-mini":       {PromptPerMillion: 0.15, CompletionPerMillion: 0.60},
			"gpt-4-turbo":       {PromptPerMillion: 10.00, CompletionPerMillion: 30.00},
			"gpt-3.5-turbo":     {PromptPerMillion: 0.50, CompletionPerMillion: 1.50},
			"o1":                {PromptPerMillion: 15.00, CompletionPerMillion: 60.00},
			"o1-mini":           {PromptPerMillion: 1.10, CompletionPerMillion: 4.40},
			"gemini-1.5-pro":    {PromptPerMillion: 1.25, CompletionPerMillion: 5.00},
			"gemini-1.5-flash":  {PromptPerMillion: 0.075, CompletionPerMillion: 0.30},
			"gemini-2.0-flash":  {PromptPerMillion: 0.10, CompletionPerMillion: 0.40},
			"claude-3-5-sonnet": {PromptPerMillion: 3.00, CompletionPerMillion: 15.00},
			"claude-3-5-haiku":  {PromptPerMillion: 0.80, CompletionPerMillion: 4.00},
		},
	}
}

// AddModel registers or replaces pricing for a model.
func (c *CostCalculator) AddModel(model string, pricing ModelPricing) {
	c.pricing[model] = pricing
}

// CalculateCost returns the estimated USD cost for a request. Unknown models
// cost zero; versioned model names fall back to their longest known prefix
// (e.g. "gpt-4o-2024-08-06" uses "gpt-4o" pricing).
func (c *CostCalculator) CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, ok := c.lookup(model)
	if !ok {
		return 0
	}

	promptCost := float64(promptTokens) / 1e6 * pricing.PromptPerMillion
	completionCost := float64(completionTokens) / 1e6 * pricing.CompletionPerMillion
	return promptCost + completionCost
}

func (c *CostCalculator) lookup(model string) (ModelPricing, bool) {
	if p, ok := c.pricing[model]; ok {
		return p, true
	}

	var (
		best    ModelPricing
		bestLen int
		found   bool
	)
	for name, p := range c.pricing {
		if strings.HasPrefix(model, name) && len(name) > bestLen {
			best = p
			bestLen = len(name)
			found = true
		}
	}
	return best, found
}
