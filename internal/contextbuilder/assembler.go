package contextbuilder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// Separator joins the accepted layer outputs
const Separator = "\n\n---\n\n"

// AssembledContext is the budgeted context for one review.
// UsedTokens never exceeds BudgetTokens.
type AssembledContext struct {
	Content      string       `json:"content"`
	UsedTokens   int          `json:"usedTokens"`
	BudgetTokens int          `json:"budgetTokens"`
	ContextHash  string       `json:"contextHash"`
	Layers       []LayerUsage `json:"layers"`
}

// LayerUsage records what one layer contributed
type LayerUsage struct {
	Name      LayerName `json:"name"`
	Tokens    int       `json:"tokens"`
	Truncated bool      `json:"truncated,omitempty"`
}

// Assembler runs the registered layers in Order within a token budget
type Assembler struct {
	layers map[LayerName]Layer
}

// NewAssembler registers layers; a later layer replaces an earlier one of the same name
func NewAssembler(layers ...Layer) *Assembler {
	a := &Assembler{layers: make(map[LayerName]Layer)}
	for _, l := range layers {
		a.Register(l)
	}
	return a
}

// Register adds or replaces the implementation of l's slot
func (a *Assembler) Register(l Layer) {
	if !l.Name().Valid() {
		log.Warn().Str("layer", string(l.Name())).Msg("Ignoring layer with unknown name")
		return
	}
	a.layers[l.Name()] = l
}

// Assemble fetches each layer in Order, truncating to the remaining budget and
// stopping once it is spent. An error from a critical layer aborts; other
// layers are not expected to fail but are skipped if they do.
func (a *Assembler) Assemble(ctx context.Context, in Input, budget int) (AssembledContext, error) {
	result := AssembledContext{BudgetTokens: budget, Layers: make([]LayerUsage, 0, len(Order))}
	parts := make([]string, 0, len(Order))

	for _, name := range Order {
		layer, ok := a.layers[name]
		if !ok {
			continue
		}
		remaining := budget - result.UsedTokens
		if remaining <= 0 {
			log.Debug().Str("layer", string(name)).Msg("Context budget exhausted")
			break
		}

		raw, err := layer.Context(ctx, in)
		if err != nil {
			if name.Critical() {
				return AssembledContext{}, fmt.Errorf("layer %s: %w", name, err)
			}
			log.Warn().Err(err).Str("layer", string(name)).Msg("Skipping failed context layer")
			continue
		}
		if raw == "" {
			continue
		}

		allowed := remaining
		if limit := layer.MaxTokens(); limit > 0 && limit < allowed {
			allowed = limit
		}

		text := raw
		tokens := EstimateTokens(raw)
		truncated := false
		if tokens > allowed {
			text = TruncateToTokens(raw, allowed)
			tokens = allowed
			truncated = true
		}

		parts = append(parts, text)
		result.UsedTokens += tokens
		result.Layers = append(result.Layers, LayerUsage{Name: name, Tokens: tokens, Truncated: truncated})
	}

	result.Content = strings.Join(parts, Separator)
	result.ContextHash = Fingerprint(result.Content)

	log.Debug().
		Int("used_tokens", result.UsedTokens).
		Int("budget_tokens", budget).
		Int("layers", len(result.Layers)).
		Str("context_hash", result.ContextHash).
		Msg("Context assembled")
	return result, nil
}

// EstimateTokens approximates tokens as ceil(characters / 3.5). It is a fixed
// heuristic, not a tokenizer.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (2*n + 6) / 7
}

// TruncateToTokens keeps the first floor(tokens * 3.5) characters of s,
// never splitting a code point
func TruncateToTokens(s string, tokens int) string {
	if tokens <= 0 {
		return ""
	}
	return truncateRunes(s, tokens*7/2)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Fingerprint is the first 16 hex characters of the sha256 of content
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
