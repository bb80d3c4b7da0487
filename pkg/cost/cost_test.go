package cost

import (
	"math"
	"testing"
)

func TestCalculateCost(t *testing.T) {
	calc := NewCostCalculator()

	tests := []struct {
		name             string
		model            string
		promptTokens     int
		completionTokens int
		want             float64
	}{
		{"known model", "gpt-4o-mini", 1_000_000, 1_000_000, 0.75},
		{"versioned model falls back to prefix", "gpt-4o-2024-08-06", 1_000_000, 0, 2.50},
		{"unknown model costs zero", "mystery-model", 500, 500, 0},
		{"zero tokens", "gpt-4o", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.CalculateCost(tt.model, tt.promptTokens, tt.completionTokens)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculateCost(%q, %d, %d) = %v, want %v",
					tt.model, tt.promptTokens, tt.completionTokens, got, tt.want)
			}
		})
	}
}

func TestCalculateCostPrefersLongestPrefix(t *testing.T) {
	calc := NewCostCalculator()

	// gpt-4o-mini-2024 must match gpt-4o-mini, not gpt-4o.
	got := calc.CalculateCost("gpt-4o-mini-2024-07-18", 1_000_000, 0)
	if math.Abs(got-0.15) > 1e-9 {
		t.Errorf("CalculateCost() = %v, want 0.15 (gpt-4o-mini pricing)", got)
	}
}

func TestAddModel(t *testing.T) {
	calc := NewCostCalculator()
	calc.AddModel("local-llama", ModelPricing{PromptPerMillion: 0, CompletionPerMillion: 0})

	if got := calc.CalculateCost("local-llama", 1000, 1000); got != 0 {
		t.Errorf("CalculateCost() = %v, want 0 for free local model", got)
	}
}
