package contextbuilder

import (
	"strings"

	"github.com/prcontext/internal/complexity"
)

const (
	// DefaultBudget applies to models missing from the budget table
	DefaultBudget = 32000
	// MinBudget is the floor of a complexity-adjusted budget
	MinBudget = 4000
)

// Budgets maps model names to their maximum context tokens
type Budgets map[string]int

// DefaultBudgets lists context windows for common review models
func DefaultBudgets() Budgets {
	return Budgets{
		"gpt-4o":            128000,
		"gpt-4o-mini":       128000,
		"gpt-4.1":           128000,
		"gpt-3.5-turbo":     16000,
		"claude-3-5-sonnet": 200000,
		"claude-3-haiku":    200000,
		"gemini-2.5-flash":  128000,
		"gemini-2.5-pro":    128000,
		"llama3":            8000,
		"qwen2.5-coder":     32000,
	}
}

// For returns the budget of model. Lookup ignores case; unknown models get DefaultBudget.
func (b Budgets) For(model string) int {
	if v, ok := b[model]; ok && v > 0 {
		return v
	}
	if v, ok := b[strings.ToLower(model)]; ok && v > 0 {
		return v
	}
	return DefaultBudget
}

// ForTier scales the model budget by the tier's factor, never dropping below
// MinBudget unless the model itself allows less
func (b Budgets) ForTier(model string, tier complexity.Tier) int {
	base := b.For(model)
	scaled := int(float64(base) * tier.BudgetFactor())
	if scaled < MinBudget {
		scaled = min(MinBudget, base)
	}
	return scaled
}
